package fare

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func twoLegTrip() Trip {
	return Trip{
		DepartWindowStart: "2026-03-01",
		DepartWindowEnd:   "2026-03-03",
		Legs: []Leg{
			{Origin: "MOW", Destination: "LED", MinStayDays: 5, MaxStayDays: 7},
			{Origin: "LED", Destination: "MOW"},
		},
		Passengers: Passengers{Adults: 1},
	}
}

func TestExpandTripWindows(t *testing.T) {
	queries, err := ExpandTrip(twoLegTrip())
	if err != nil {
		t.Fatal(err)
	}

	var leg0, leg1 []string
	for _, q := range queries {
		switch q.Leg {
		case 0:
			require.Equal(t, "MOW", q.Origin)
			require.Equal(t, "LED", q.Destination)
			leg0 = append(leg0, q.Date)
		case 1:
			leg1 = append(leg1, q.Date)
		default:
			t.Fatalf("unexpected leg index %d", q.Leg)
		}
	}

	require.Equal(t, []string{"2026-03-01", "2026-03-02", "2026-03-03"}, leg0)
	// leg 1 window: 03-01 + 5 days .. 03-03 + 7 days
	require.Equal(t, []string{
		"2026-03-06", "2026-03-07", "2026-03-08", "2026-03-09", "2026-03-10",
	}, leg1)
}

func TestExpandTripRejectsInvertedWindow(t *testing.T) {
	trip := twoLegTrip()
	trip.DepartWindowStart = "2026-03-09"
	_, err := ExpandTrip(trip)
	require.Error(t, err)
}

func TestPriceTableKeepsCheapest(t *testing.T) {
	table := PriceTable{}
	table.Add(0, "2026-03-01", Offer{Price: 120})
	table.Add(0, "2026-03-01", Offer{Price: 100})
	table.Add(0, "2026-03-01", Offer{Price: 110})
	require.Equal(t, 100.0, table[0]["2026-03-01"].Price)
}

func TestBuildPriceTableSkipsAbsentOffers(t *testing.T) {
	queries := []LegQuery{
		{Leg: 0, Date: "2026-03-01"},
		{Leg: 0, Date: "2026-03-02"},
	}
	offers := []*Offer{nil, {Price: 90}}
	table := BuildPriceTable(queries, offers)
	require.Len(t, table[0], 1)
	require.Equal(t, 90.0, table[0]["2026-03-02"].Price)
}
