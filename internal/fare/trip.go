package fare

import (
	"fmt"
	"time"
)

// ExpandTrip enumerates every leg/date query a trip could possibly need.
// Leg 0 ranges over the configured departure window; leg i ranges over the
// window shifted by the cumulative minimum/maximum stays of the legs before
// it. The result is a superset of what any single itinerary uses, so the
// optimizer is free to pick any date combination afterwards.
func ExpandTrip(trip Trip) ([]LegQuery, error) {
	if len(trip.Legs) == 0 {
		return nil, fmt.Errorf("trip has no legs")
	}

	windowStart, err := time.Parse(DateLayout, trip.DepartWindowStart)
	if err != nil {
		return nil, fmt.Errorf("depart window start: %w", err)
	}
	windowEnd, err := time.Parse(DateLayout, trip.DepartWindowEnd)
	if err != nil {
		return nil, fmt.Errorf("depart window end: %w", err)
	}
	if windowEnd.Before(windowStart) {
		return nil, fmt.Errorf(
			"depart window ends (%s) before it starts (%s)",
			trip.DepartWindowEnd, trip.DepartWindowStart,
		)
	}

	var queries []LegQuery

	minShift, maxShift := 0, 0
	for i, leg := range trip.Legs {
		start := windowStart.AddDate(0, 0, minShift)
		end := windowEnd.AddDate(0, 0, maxShift)

		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			queries = append(queries, LegQuery{
				Leg:         i,
				Origin:      leg.Origin,
				Destination: leg.Destination,
				Date:        d.Format(DateLayout),
				Passengers:  trip.Passengers,
				Filters:     leg.Filters,
			})
		}

		minShift += leg.MinStayDays
		maxShift += leg.MaxStayDays
	}

	return queries, nil
}
