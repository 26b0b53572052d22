package avia

import "encoding/json"

// The wire protocol below is reverse-engineered from the upstream web
// client and reproduced bit-for-bit. It is unversioned upstream and may
// change without notice.

type direction struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Date        string `json:"date"`
}

type passengers struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Infants  int `json:"infants"`
}

type startRequest struct {
	Directions   []direction   `json:"directions"`
	Passengers   passengers    `json:"passengers"`
	TripClass    string        `json:"trip_class"`
	Market       string        `json:"market"`
	Currency     string        `json:"currency"`
	Locale       string        `json:"locale"`
	FiltersState *filtersState `json:"filters_state,omitempty"`
	Sort         string        `json:"sort"`
}

type startResponse struct {
	SearchId          string          `json:"search_id"`
	ResultsUrl        string          `json:"results_url"`
	FiltersState      json.RawMessage `json:"filters_state"`
	PollingIntervalMs int             `json:"polling_interval_ms"`
}

type pollRequest struct {
	SearchId            string          `json:"search_id"`
	FiltersState        json.RawMessage `json:"filters_state,omitempty"`
	LastUpdateTimestamp int64           `json:"last_update_timestamp,omitempty"`
}

// pollChunk is the first element of the array a poll answers with.
// LastUpdateTimestamp == 0 signals the search has settled.
type pollChunk struct {
	Tickets             []ticket    `json:"tickets"`
	FlightLegs          []flightLeg `json:"flight_legs"`
	LastUpdateTimestamp int64       `json:"last_update_timestamp"`
}

type ticket struct {
	Id        string     `json:"id"`
	Signature string     `json:"signature"`
	Proposals []proposal `json:"proposals"`
	Segments  []segment  `json:"segments"`
}

// segment references flight legs by index into the chunk's flight_legs.
type segment struct {
	Flights []int `json:"flights"`
}

type proposal struct {
	Id    string `json:"id"`
	Price price  `json:"price"`
}

type price struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

type flightLeg struct {
	Origin           string `json:"origin"`
	Destination      string `json:"destination"`
	DepartureUnix    int64  `json:"departure_unix"`
	ArrivalUnix      int64  `json:"arrival_unix"`
	MarketingCarrier string `json:"marketing_carrier"`
}

// filtersState translates user constraints into the upstream filter
// primitives. Only set fields are serialized; an all-zero state is sent as
// no filters_state at all.
type filtersState struct {
	Airlines          []string       `json:"airlines,omitempty"`
	Baggage           []string       `json:"baggage,omitempty"`
	TransfersCount    []int          `json:"transfers_count,omitempty"`
	TransfersDuration *durationRange `json:"transfers_duration,omitempty"`
}

type durationRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}
