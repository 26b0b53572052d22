package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"farewatch/internal/batch"
	"farewatch/internal/fare"
	"farewatch/internal/optimizer"
	"farewatch/internal/proxypool"
	"farewatch/internal/scrapers/avia"
	"farewatch/internal/sessionpool"
	"farewatch/lib/configutil"
	"farewatch/lib/serviceutil"
)

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&tripFile, "trip", "trip.json5", "path to the trip definition file")
}

var tripFile string

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Price every leg/date combination of a trip and print the cheapest itinerary.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := configutil.ReadConfig[Config]("config.json5")
		if err != nil {
			serviceutil.Fatal("failed to load configuration", err)
		}
		trip, err := configutil.ReadConfig[fare.Trip](tripFile)
		if err != nil {
			serviceutil.Fatal("failed to load trip definition", err)
		}
		queries, err := fare.ExpandTrip(trip)
		if err != nil {
			serviceutil.Fatal("failed to expand trip into queries", err)
		}

		offers, stats := runBatch(cmd.Context(), config, queries)

		priceTable := fare.BuildPriceTable(queries, offers)
		renderOffers(queries, offers)

		best := optimizer.FindBest(trip, priceTable)
		renderItinerary(best)

		fmt.Printf(
			"%d queries, %d succeeded, %d failed, took %s\n",
			stats.Total, stats.Succeeded, stats.Failed, stats.Elapsed.Round(time.Millisecond),
		)
	},
}

func runBatch(ctx context.Context, config Config, queries []fare.LegQuery) ([]*fare.Offer, batch.Stats) {
	proxies := proxypool.New(config.Proxies)
	sessions := sessionpool.New(sessionpool.Options{
		Homepage:   config.Session.Homepage,
		ChromePath: config.Session.ChromePath,
	})

	clientOpts := avia.Options{
		StartUrl:     config.Upstream.StartUrl,
		Host:         config.Upstream.Host,
		Market:       config.Upstream.Market,
		Currency:     config.Upstream.Currency,
		Locale:       config.Upstream.Locale,
		Marker:       config.Upstream.Marker,
		PollAttempts: config.Upstream.PollAttempts,
	}
	if config.RequestsPerMinute > 0 {
		clientOpts.Limiter = rate.NewLimiter(
			rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1,
		)
	}

	scheduler := batch.NewScheduler(
		batch.Options{
			Concurrency:  config.Batch.Concurrency,
			SessionCount: config.Batch.SessionCount,
			PauseMin:     time.Duration(config.Batch.PauseMinMs) * time.Millisecond,
			PauseMax:     time.Duration(config.Batch.PauseMaxMs) * time.Millisecond,
			CacheTTL:     time.Duration(config.Batch.CacheTtlMinutes) * time.Minute,
		},
		proxies,
		sessions,
		func(ctx context.Context, q fare.LegQuery, proxy *proxypool.Endpoint, session *sessionpool.Credential) (*fare.Offer, error) {
			client, err := avia.NewClient(clientOpts, proxy, session)
			if err != nil {
				return nil, err
			}
			return client.Search(ctx, q)
		},
	)

	offers, stats, err := scheduler.Run(ctx, queries)
	if err != nil {
		serviceutil.Fatal("batch run aborted", err)
	}
	return offers, stats
}

func renderOffers(queries []fare.LegQuery, offers []*fare.Offer) {
	t := newTable()
	t.AppendHeader(table.Row{"leg", "route", "date", "price", "currency", "link"})
	for i, offer := range offers {
		q := queries[i]
		route := q.Origin + "-" + q.Destination
		if offer == nil {
			t.AppendRow(table.Row{q.Leg, route, q.Date, "-", "-", "-"})
			continue
		}
		t.AppendRow(table.Row{
			q.Leg, route, q.Date,
			fmt.Sprintf("%.2f", offer.Price), offer.Currency, offer.Link,
		})
	}
	t.Render()
}

func renderItinerary(best *fare.Itinerary) {
	if best == nil {
		fmt.Println("no complete itinerary satisfies the stay constraints")
		return
	}
	t := newTable()
	t.AppendHeader(table.Row{"leg", "date", "price", "link"})
	for _, choice := range best.Choices {
		t.AppendRow(table.Row{
			choice.Leg, choice.Date,
			fmt.Sprintf("%.2f %s", choice.Offer.Price, choice.Offer.Currency),
			choice.Offer.Link,
		})
	}
	t.AppendFooter(table.Row{"", "total", fmt.Sprintf("%.2f", best.Total), ""})
	t.Render()
}
