// Package optimizer finds the minimum-total-price complete assignment of
// dates across a trip's legs. It is a pure function over the price table
// the batch run produced; it owns no state and performs no I/O.
package optimizer

import (
	"sort"
	"time"

	"farewatch/internal/fare"
)

// FindBest runs a pruned backtracking search over the priced dates of every
// leg. The date window of leg 0 is the trip's departure window; each later
// leg's window is the previous leg's chosen date shifted by that leg's
// min/max stay. Returns nil when no complete assignment exists; partial
// itineraries are never returned.
func FindBest(trip fare.Trip, table fare.PriceTable) *fare.Itinerary {
	if len(trip.Legs) == 0 {
		return nil
	}
	windowStart, err := time.Parse(fare.DateLayout, trip.DepartWindowStart)
	if err != nil {
		return nil
	}
	windowEnd, err := time.Parse(fare.DateLayout, trip.DepartWindowEnd)
	if err != nil {
		return nil
	}

	s := &search{trip: trip, table: table}
	s.descend(0, windowStart, windowEnd, 0)
	return s.best
}

type search struct {
	trip    fare.Trip
	table   fare.PriceTable
	choices []fare.Choice
	best    *fare.Itinerary
}

func (s *search) descend(leg int, windowStart, windowEnd time.Time, running float64) {
	if leg == len(s.trip.Legs) {
		choices := make([]fare.Choice, len(s.choices))
		copy(choices, s.choices)
		s.best = &fare.Itinerary{Choices: choices, Total: running}
		return
	}

	for _, date := range s.pricedDatesWithin(leg, windowStart, windowEnd) {
		offer := s.table[leg][date.Format(fare.DateLayout)]
		total := running + offer.Price

		// any branch that already matches the best complete total cannot
		// improve on it
		if s.best != nil && total >= s.best.Total {
			continue
		}

		s.choices = append(s.choices, fare.Choice{
			Leg:   leg,
			Date:  date.Format(fare.DateLayout),
			Offer: offer,
		})

		stay := s.trip.Legs[leg]
		s.descend(
			leg+1,
			date.AddDate(0, 0, stay.MinStayDays),
			date.AddDate(0, 0, stay.MaxStayDays),
			total,
		)

		s.choices = s.choices[:len(s.choices)-1]
	}
}

// pricedDatesWithin returns the leg's table dates that fall inside the
// window, sorted so the search is deterministic.
func (s *search) pricedDatesWithin(leg int, windowStart, windowEnd time.Time) []time.Time {
	var dates []time.Time
	for raw := range s.table[leg] {
		date, err := time.Parse(fare.DateLayout, raw)
		if err != nil {
			continue
		}
		if date.Before(windowStart) || date.After(windowEnd) {
			continue
		}
		dates = append(dates, date)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}
