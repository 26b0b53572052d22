package avia

import "farewatch/internal/fare"

const fullBaggage = "full_baggage"

// buildFiltersState maps the query-level constraints onto upstream filter
// primitives. Returns nil when nothing is filtered, so the start request
// omits filters_state entirely.
func buildFiltersState(f fare.Filters) *filtersState {
	state := &filtersState{}
	empty := true

	if f.Airline != "" {
		state.Airlines = []string{f.Airline}
		empty = false
	}
	if f.BaggageOnly {
		state.Baggage = []string{fullBaggage}
		empty = false
	}
	if f.MaxStops != nil {
		counts := make([]int, 0, *f.MaxStops+1)
		for i := 0; i <= *f.MaxStops; i++ {
			counts = append(counts, i)
		}
		state.TransfersCount = counts
		empty = false
	}
	if f.MaxLayoverMinutes > 0 {
		state.TransfersDuration = &durationRange{Min: 0, Max: f.MaxLayoverMinutes}
		empty = false
	}

	if empty {
		return nil
	}
	return state
}
