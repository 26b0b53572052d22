package avia

// candidate is one priced ticket with its flight legs resolved, tracked
// while polls stream in so only the global minimum survives.
type candidate struct {
	ticket   ticket
	proposal proposal
	legs     []flightLeg
}

// cheapestInChunk scans every ticket's proposals in one poll chunk and
// returns the chunk's minimum-price candidate with its segments resolved
// into flight-leg records. Tickets whose segments point outside the chunk's
// flight_legs table are skipped rather than trusted.
func cheapestInChunk(chunk pollChunk) (candidate, bool) {
	var best candidate
	found := false

	for _, t := range chunk.Tickets {
		legs, ok := resolveFlights(t, chunk.FlightLegs)
		if !ok {
			continue
		}
		for _, p := range t.Proposals {
			if !found || p.Price.Amount < best.proposal.Price.Amount {
				best = candidate{ticket: t, proposal: p, legs: legs}
				found = true
			}
		}
	}

	return best, found
}

func resolveFlights(t ticket, table []flightLeg) ([]flightLeg, bool) {
	var legs []flightLeg
	for _, seg := range t.Segments {
		for _, idx := range seg.Flights {
			if idx < 0 || idx >= len(table) {
				return nil, false
			}
			legs = append(legs, table[idx])
		}
	}
	return legs, true
}
