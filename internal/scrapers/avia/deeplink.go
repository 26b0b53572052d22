package avia

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"farewatch/internal/fare"

	"github.com/mazen160/go-random"
)

var (
	errMissingSignature = errors.New("ticket carries no signature")
	errNoFlights        = errors.New("ticket resolved to no flight legs")
)

// maxLayoverSeconds is the empirical cutoff after which two consecutive
// flights are treated as separate travel directions rather than a layover.
const maxLayoverSeconds = int64(24 * time.Hour / time.Second)

// groupFlights splits a ticket's ordered flight legs into directional
// groups. A new group starts when the next leg does not depart from where
// the previous one landed, when the layover exceeds 24 hours, or when the
// leg heads back to the group's starting point. The thresholds are
// empirically derived, not a guaranteed itinerary-topology algorithm.
func groupFlights(legs []flightLeg) [][]flightLeg {
	if len(legs) == 0 {
		return nil
	}

	var groups [][]flightLeg
	current := []flightLeg{legs[0]}

	for _, next := range legs[1:] {
		prev := current[len(current)-1]
		layover := next.DepartureUnix - prev.ArrivalUnix
		reverses := next.Destination == current[0].Origin

		if next.Origin != prev.Destination || layover > maxLayoverSeconds || reverses {
			groups = append(groups, current)
			current = []flightLeg{next}
			continue
		}
		current = append(current, next)
	}

	return append(groups, current)
}

// buildToken reconstructs the vendor ticket token the upstream web client
// embeds in its own deep links. The byte layout is preserved exactly as
// observed: per directional group the carrier code, departure and arrival
// epoch seconds, stop count padded to 5 digits, duration in minutes padded
// to 3 digits and the origin+destination pair, all concatenated; then the
// ticket signature and the rounded price, separated by underscores.
func buildToken(c candidate) (string, error) {
	if c.ticket.Signature == "" {
		return "", errMissingSignature
	}
	if len(c.legs) == 0 {
		return "", errNoFlights
	}

	var b strings.Builder
	for _, group := range groupFlights(c.legs) {
		first := group[0]
		last := group[len(group)-1]
		stops := len(group) - 1
		durationMin := (last.ArrivalUnix - first.DepartureUnix) / 60

		fmt.Fprintf(&b, "%s%d%d%05d%03d%s%s",
			first.MarketingCarrier,
			first.DepartureUnix,
			last.ArrivalUnix,
			stops,
			durationMin,
			first.Origin,
			last.Destination,
		)
	}

	rounded := int64(math.Round(c.proposal.Price.Amount))
	return fmt.Sprintf("%s_%s_%d", b.String(), c.ticket.Signature, rounded), nil
}

// searchPath encodes a query the way the upstream site addresses searches:
// origin, departure day+month, destination, optional return day+month, then
// passenger count digits.
func searchPath(q fare.LegQuery) string {
	var b strings.Builder
	b.WriteString(q.Origin)
	b.WriteString(ddmm(q.Date))
	b.WriteString(q.Destination)
	if q.ReturnDate != "" {
		b.WriteString(ddmm(q.ReturnDate))
	}

	b.WriteString(strconv.Itoa(q.Passengers.Adults))
	if q.Passengers.Children > 0 || q.Passengers.Infants > 0 {
		b.WriteString(strconv.Itoa(q.Passengers.Children))
	}
	if q.Passengers.Infants > 0 {
		b.WriteString(strconv.Itoa(q.Passengers.Infants))
	}
	return b.String()
}

func ddmm(date string) string {
	t, err := time.Parse(fare.DateLayout, date)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%02d%02d", t.Day(), int(t.Month()))
}

// DeepLink builds a link that pre-fills the found offer on the upstream
// site. When the ticket is missing a required field the reconstruction
// degrades to PlainLink rather than failing the query.
func (c *Client) DeepLink(q fare.LegQuery, cand candidate) string {
	token, err := buildToken(cand)
	if err != nil {
		slog.Debug("deep link reconstruction failed, using plain link", "err", err)
		return c.PlainLink(q)
	}

	correlation, err := random.String(16)
	if err != nil {
		correlation = strconv.FormatInt(time.Now().UnixNano(), 36)
	}

	link := url.URL{
		Scheme: "https",
		Host:   c.opts.Host,
		Path:   "/search/" + searchPath(q),
	}
	values := url.Values{}
	values.Set("t", token)
	values.Set("expected_price", strconv.FormatFloat(cand.proposal.Price.Amount, 'f', -1, 64))
	values.Set("expected_price_currency", cand.proposal.Price.Currency)
	values.Set("expected_price_uuid", correlation)
	if c.opts.Marker != "" {
		values.Set("marker", c.opts.Marker)
	}
	link.RawQuery = values.Encode()
	return link.String()
}

// PlainLink is the generic, non-pre-filled search link for a query.
func (c *Client) PlainLink(q fare.LegQuery) string {
	link := url.URL{
		Scheme: "https",
		Host:   c.opts.Host,
		Path:   "/search/" + searchPath(q),
	}
	if c.opts.Marker != "" {
		values := url.Values{}
		values.Set("marker", c.opts.Marker)
		link.RawQuery = values.Encode()
	}
	return link.String()
}
