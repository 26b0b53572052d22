// Package fare holds the data model shared between the batch scheduler,
// the search client and the itinerary optimizer.
package fare

// DateLayout is the wire format for all departure dates.
const DateLayout = "2006-01-02"

// Filters narrows a search down on the upstream side. The zero value means
// no filtering at all.
type Filters struct {
	// Airline is an IATA carrier code, e.g. "SU".
	Airline string `json:"airline"`
	// BaggageOnly keeps only proposals that include checked baggage.
	BaggageOnly bool `json:"baggage_only"`
	// MaxStops is nil when any number of stops is acceptable. Zero is a
	// meaningful value (direct flights only), hence the pointer.
	MaxStops *int `json:"max_stops"`
	// MaxLayoverMinutes caps the duration of any single layover.
	MaxLayoverMinutes int `json:"max_layover_minutes"`
}

// Passengers is the traveller head count for a query.
type Passengers struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

// LegQuery is one leg/date price lookup. It is immutable once handed to the
// scheduler.
type LegQuery struct {
	// Leg is the zero-based order of this leg within its trip.
	Leg         int
	Origin      string
	Destination string
	// Date is the departure date in DateLayout.
	Date string
	// ReturnDate is set only for plain round trips searched as a single
	// two-direction query.
	ReturnDate string
	Passengers Passengers
	Filters    Filters
}

// Offer is the cheapest priced ticket the upstream service reported for one
// leg query.
type Offer struct {
	Price      float64
	Currency   string
	TicketId   string
	ProposalId string
	// Link pre-fills the offer on the upstream site. It falls back to a
	// generic search link when deep-link reconstruction was not possible.
	Link string
}

// Leg is one directional segment of a trip plus the stay constraints that
// bind it to the next leg.
type Leg struct {
	Origin      string  `json:"origin"`
	Destination string  `json:"destination"`
	MinStayDays int     `json:"min_stay_days"`
	MaxStayDays int     `json:"max_stay_days"`
	Filters     Filters `json:"filters"`
}

// Trip is the user-configured journey: an ordered list of legs and a window
// of acceptable departure dates for the first leg.
type Trip struct {
	DepartWindowStart string     `json:"depart_window_start"`
	DepartWindowEnd   string     `json:"depart_window_end"`
	Legs              []Leg      `json:"legs"`
	Passengers        Passengers `json:"passengers"`
	TripClass         string     `json:"trip_class"`
}

// PriceTable maps leg order -> departure date -> best offer seen. It is
// built incrementally from scheduler results and read by the optimizer.
type PriceTable map[int]map[string]Offer

// Add records an offer, keeping only the cheapest one per leg/date.
func (t PriceTable) Add(leg int, date string, offer Offer) {
	dates, ok := t[leg]
	if !ok {
		dates = map[string]Offer{}
		t[leg] = dates
	}
	existing, ok := dates[date]
	if ok && existing.Price <= offer.Price {
		return
	}
	dates[date] = offer
}

// BuildPriceTable pairs scheduler results back up with the queries that
// produced them. Absent offers are skipped.
func BuildPriceTable(queries []LegQuery, offers []*Offer) PriceTable {
	table := PriceTable{}
	for i, offer := range offers {
		if offer == nil {
			continue
		}
		table.Add(queries[i].Leg, queries[i].Date, *offer)
	}
	return table
}

// Choice is one leg's assignment within a complete itinerary.
type Choice struct {
	Leg   int
	Date  string
	Offer Offer
}

// Itinerary is a complete, date-consistent assignment of offers across all
// legs of a trip. It is never partially filled.
type Itinerary struct {
	Choices []Choice
	Total   float64
}
