package avia

import (
	"fmt"
	"testing"

	"farewatch/internal/fare"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func leg(origin, dest string, dep, arr int64) flightLeg {
	return flightLeg{
		Origin:           origin,
		Destination:      dest,
		DepartureUnix:    dep,
		ArrivalUnix:      arr,
		MarketingCarrier: "SU",
	}
}

func TestGroupFlightsSingleDirection(t *testing.T) {
	legs := []flightLeg{
		leg("MOW", "IST", 1000, 2000),
		leg("IST", "LED", 3000, 4000),
	}
	groups := groupFlights(legs)
	require.Len(t, groups, 1)
	if diff := cmp.Diff(legs, groups[0]); diff != "" {
		t.Fatal(diff)
	}
}

func TestGroupFlightsSplitsOnOriginMismatch(t *testing.T) {
	legs := []flightLeg{
		leg("MOW", "IST", 1000, 2000),
		leg("ESB", "LED", 3000, 4000),
	}
	groups := groupFlights(legs)
	require.Len(t, groups, 2)
}

func TestGroupFlightsSplitsOnLongLayover(t *testing.T) {
	dayAndChange := int64(25 * 60 * 60)
	legs := []flightLeg{
		leg("MOW", "IST", 1000, 2000),
		leg("IST", "LED", 2000+dayAndChange, 2000+dayAndChange+3600),
	}
	groups := groupFlights(legs)
	require.Len(t, groups, 2)
}

func TestGroupFlightsSplitsOnReversal(t *testing.T) {
	// outbound then inbound of a round trip with matching airports
	legs := []flightLeg{
		leg("MOW", "LED", 1000, 2000),
		leg("LED", "MOW", 10000, 11000),
	}
	groups := groupFlights(legs)
	require.Len(t, groups, 2)
}

func TestBuildTokenLayout(t *testing.T) {
	cand := candidate{
		ticket: ticket{Signature: "sig123"},
		proposal: proposal{
			Price: price{Amount: 12345.4, Currency: "RUB"},
		},
		legs: []flightLeg{
			leg("MOW", "IST", 1767972600, 1767979800),  // 120 min
			leg("IST", "LED", 1767987000, 1767994200),  // 2h layover, 120 min
		},
	}

	token, err := buildToken(cand)
	if err != nil {
		t.Fatal(err)
	}

	expected := fmt.Sprintf(
		"SU%d%d%05d%03dMOWLED_sig123_12345",
		int64(1767972600), int64(1767994200), 1, (1767994200-1767972600)/60,
	)
	require.Equal(t, expected, token)
}

func TestBuildTokenMissingSignature(t *testing.T) {
	cand := candidate{
		legs: []flightLeg{leg("MOW", "LED", 1000, 2000)},
	}
	_, err := buildToken(cand)
	require.ErrorIs(t, err, errMissingSignature)
}

func TestBuildTokenNoFlights(t *testing.T) {
	cand := candidate{ticket: ticket{Signature: "sig"}}
	_, err := buildToken(cand)
	require.ErrorIs(t, err, errNoFlights)
}

func TestDeepLinkFallsBackWithoutSignature(t *testing.T) {
	client, err := NewClient(Options{Host: "www.example.com", Marker: "m123"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	q := fare.LegQuery{
		Origin:      "MOW",
		Destination: "LED",
		Date:        "2026-03-15",
		Passengers:  fare.Passengers{Adults: 1},
	}
	cand := candidate{legs: []flightLeg{leg("MOW", "LED", 1000, 2000)}}

	require.Equal(t, client.PlainLink(q), client.DeepLink(q, cand))
	require.Equal(t,
		"https://www.example.com/search/MOW1503LED1?marker=m123",
		client.PlainLink(q),
	)
}

func TestDeepLinkCarriesTokenAndPrice(t *testing.T) {
	client, err := NewClient(Options{Host: "www.example.com"}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	q := fare.LegQuery{
		Origin:      "MOW",
		Destination: "LED",
		Date:        "2026-03-15",
		ReturnDate:  "2026-03-22",
		Passengers:  fare.Passengers{Adults: 2, Children: 1},
	}
	cand := candidate{
		ticket:   ticket{Signature: "sig"},
		proposal: proposal{Price: price{Amount: 9900, Currency: "RUB"}},
		legs:     []flightLeg{leg("MOW", "LED", 1000, 2000)},
	}

	link := client.DeepLink(q, cand)
	require.Contains(t, link, "/search/MOW1503LED220321?")
	require.Contains(t, link, "expected_price=9900")
	require.Contains(t, link, "expected_price_currency=RUB")
	require.Contains(t, link, "expected_price_uuid=")
	require.Contains(t, link, "t=SU")
}

func TestSearchPathPassengerDigits(t *testing.T) {
	base := fare.LegQuery{Origin: "MOW", Destination: "LED", Date: "2026-03-15"}

	solo := base
	solo.Passengers = fare.Passengers{Adults: 1}
	require.Equal(t, "MOW1503LED1", searchPath(solo))

	family := base
	family.Passengers = fare.Passengers{Adults: 2, Children: 1, Infants: 1}
	require.Equal(t, "MOW1503LED211", searchPath(family))

	infantOnlyExtra := base
	infantOnlyExtra.Passengers = fare.Passengers{Adults: 1, Infants: 1}
	require.Equal(t, "MOW1503LED101", searchPath(infantOnlyExtra))
}
