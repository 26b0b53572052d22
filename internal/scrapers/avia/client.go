// Package avia talks to the upstream flight-search service: it starts a
// search for one leg/date query, polls it to completion, extracts the
// cheapest offer and reconstructs the vendor deep link for it.
package avia

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"farewatch/internal/fare"
	"farewatch/internal/proxypool"
	"farewatch/internal/sessionpool"
	"farewatch/lib/jsonutil"
	"farewatch/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

var tracer = otel.Tracer("scrapers/avia")

// ErrBlocked is a distinct error kind for HTTP 403 from the upstream edge,
// so callers can decide to regenerate sessions or back off instead of
// blindly retrying.
var ErrBlocked = errors.New("blocked by upstream edge")

// ErrSearchTimeout means the poll attempt budget ran out before the search
// settled. It fails only the query it belongs to.
var ErrSearchTimeout = errors.New("search did not settle within the poll budget")

const sortPriceAscending = "price_asc"

type Options struct {
	// StartUrl is the search-start endpoint.
	StartUrl string
	// Host is the public site host deep links point at.
	Host string

	Market    string
	Currency  string
	Locale    string
	TripClass string
	// Marker is the affiliate identifier appended to every link.
	Marker string

	// PollAttempts bounds how many polls one search may consume. "Not
	// modified" answers do not count against it.
	PollAttempts int
	// Timeout applies to each individual start/poll call.
	Timeout time.Duration
	// Limiter is shared across all clients of one batch run so parallel
	// workers stay under the upstream rate ceiling. Optional.
	Limiter *rate.Limiter
}

type Client struct {
	http *resty.Client
	opts Options
}

// NewClient builds a client for a single search invocation, wired to the
// proxy and session credential its worker was assigned. Either may be nil:
// no proxy means a direct connection, no session means an anonymous try.
func NewClient(opts Options, proxy *proxypool.Endpoint, session *sessionpool.Credential) (*Client, error) {
	if opts.PollAttempts == 0 {
		opts.PollAttempts = 30
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.TripClass == "" {
		opts.TripClass = "Y"
	}

	client := resty.New()
	client.SetTimeout(opts.Timeout)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("user-agent", browser.Chrome())
	client.SetHeader("content-type", "application/json")

	if proxy != nil {
		client.SetProxy(proxy.Address)
	}
	if session != nil {
		cookies := make([]*http.Cookie, 0, len(session.Tokens))
		for name, value := range session.Tokens {
			cookies = append(cookies, &http.Cookie{Name: name, Value: value})
		}
		client.SetCookies(cookies)
	}
	if opts.Limiter != nil {
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return opts.Limiter.Wait(req.Context())
		})
	}

	telemetry.InstrumentResty(client, "scrapers/avia/http")

	return &Client{http: client, opts: opts}, nil
}

// Search runs the full start/poll cycle for one leg query and returns the
// cheapest offer, or nil when the upstream reported nothing for that date.
func (c *Client) Search(ctx context.Context, q fare.LegQuery) (*fare.Offer, error) {
	ctx, span := tracer.Start(ctx, "client:Search")
	defer span.End()

	start, err := c.startSearch(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search start failed")
		return nil, err
	}

	best, err := c.pollToCompletion(ctx, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search poll failed")
		return nil, err
	}
	if best == nil {
		return nil, nil
	}

	return &fare.Offer{
		Price:      best.proposal.Price.Amount,
		Currency:   best.proposal.Price.Currency,
		TicketId:   best.ticket.Id,
		ProposalId: best.proposal.Id,
		Link:       c.DeepLink(q, *best),
	}, nil
}

func (c *Client) startSearch(ctx context.Context, q fare.LegQuery) (startResponse, error) {
	directions := []direction{{
		Origin:      q.Origin,
		Destination: q.Destination,
		Date:        q.Date,
	}}
	if q.ReturnDate != "" {
		directions = append(directions, direction{
			Origin:      q.Destination,
			Destination: q.Origin,
			Date:        q.ReturnDate,
		})
	}

	body := startRequest{
		Directions: directions,
		Passengers: passengers{
			Adults:   q.Passengers.Adults,
			Children: q.Passengers.Children,
			Infants:  q.Passengers.Infants,
		},
		TripClass:    c.opts.TripClass,
		Market:       c.opts.Market,
		Currency:     c.opts.Currency,
		Locale:       c.opts.Locale,
		FiltersState: buildFiltersState(q.Filters),
		Sort:         sortPriceAscending,
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		Post(c.opts.StartUrl)
	if err != nil {
		return startResponse{}, fmt.Errorf("start search: %w", err)
	}
	if res.StatusCode() == http.StatusForbidden {
		return startResponse{}, fmt.Errorf("start search: %w", ErrBlocked)
	}
	if res.IsError() {
		return startResponse{}, fmt.Errorf("start search answered %s", res.Status())
	}

	var parsed startResponse
	err = jsonutil.UnmarshalLenient(res.Body(), &parsed)
	if err != nil {
		return startResponse{}, fmt.Errorf("start search: %w", err)
	}
	if parsed.SearchId == "" || parsed.ResultsUrl == "" {
		return startResponse{}, fmt.Errorf("start search answered without search_id/results_url")
	}
	return parsed, nil
}

// pollToCompletion repeatedly posts to the results endpoint until the
// upstream timestamp reaches zero. Polls answered 304 keep the loop going
// without consuming the attempt budget; everything else does.
func (c *Client) pollToCompletion(ctx context.Context, start startResponse) (*candidate, error) {
	resultsUrl, err := c.resolveResultsUrl(start.ResultsUrl)
	if err != nil {
		return nil, err
	}
	interval := time.Duration(start.PollingIntervalMs) * time.Millisecond

	var best *candidate
	var lastUpdate int64

	for attempt := 0; attempt < c.opts.PollAttempts; {
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		res, err := c.http.R().
			SetContext(ctx).
			SetBody(pollRequest{
				SearchId:            start.SearchId,
				FiltersState:        start.FiltersState,
				LastUpdateTimestamp: lastUpdate,
			}).
			Post(resultsUrl)
		if err != nil {
			attempt++
			continue
		}
		if res.StatusCode() == http.StatusNotModified {
			continue
		}
		if res.StatusCode() == http.StatusForbidden {
			return nil, fmt.Errorf("poll results: %w", ErrBlocked)
		}
		if res.IsError() {
			attempt++
			continue
		}

		var chunks []pollChunk
		err = jsonutil.UnmarshalLenient(res.Body(), &chunks)
		if err != nil {
			return nil, fmt.Errorf("poll results: %w", err)
		}
		if len(chunks) == 0 {
			attempt++
			continue
		}

		chunk := chunks[0]
		if found, ok := cheapestInChunk(chunk); ok {
			if best == nil || found.proposal.Price.Amount < best.proposal.Price.Amount {
				best = &found
			}
		}

		if chunk.LastUpdateTimestamp == 0 {
			return best, nil
		}
		lastUpdate = chunk.LastUpdateTimestamp
		attempt++
	}

	return nil, ErrSearchTimeout
}

// resolveResultsUrl handles the upstream sometimes answering with a path
// relative to the start endpoint instead of a full URL.
func (c *Client) resolveResultsUrl(raw string) (string, error) {
	if !strings.HasPrefix(raw, "/") {
		return raw, nil
	}
	base, err := url.Parse(c.opts.StartUrl)
	if err != nil {
		return "", fmt.Errorf("results url: %w", err)
	}
	rel, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("results url: %w", err)
	}
	return base.ResolveReference(rel).String(), nil
}
