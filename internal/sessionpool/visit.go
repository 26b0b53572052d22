package sessionpool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("sessionpool")

const cookiePollInterval = 500 * time.Millisecond

// browserVisit drives one headless browser session against the upstream
// homepage and harvests the cookie jar once the identity token appears.
// Every visit gets a fresh browser so credentials stay independent.
func (p *Pool) browserVisit(ctx context.Context) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "browserVisit")
	defer span.End()

	l := launcher.New().
		Headless(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("no-sandbox").
		Set("window-size", "1920,1080").
		Set("lang", "en-US,en")
	if p.opts.ChromePath != "" {
		l = l.Bin(p.opts.ChromePath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		span.SetStatus(codes.Error, "failed to launch browser")
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		span.SetStatus(codes.Error, "failed to connect to browser")
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		span.SetStatus(codes.Error, "failed to open stealth page")
		return nil, fmt.Errorf("stealth page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.Navigate(p.opts.Homepage); err != nil {
		span.SetStatus(codes.Error, "failed to navigate to homepage")
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		span.SetStatus(codes.Error, "homepage never finished loading")
		return nil, fmt.Errorf("wait load: %w", err)
	}

	html, err := page.HTML()
	if err == nil && looksBlocked(html) {
		span.SetStatus(codes.Error, "homepage served a block page")
		return nil, fmt.Errorf("upstream served a block page instead of the homepage")
	}

	deadline := time.Now().Add(p.opts.WaitTimeout)
	for {
		cookies, err := page.Cookies(nil)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("read cookies: %w", err)
		}

		tokens := map[string]string{}
		for _, c := range cookies {
			tokens[c.Name] = c.Value
		}
		if tokens[IdentityToken] != "" {
			return tokens, nil
		}

		if time.Now().After(deadline) {
			span.SetStatus(codes.Error, "identity token never appeared")
			return nil, fmt.Errorf("%q cookie did not appear within %s", IdentityToken, p.opts.WaitTimeout)
		}
		select {
		case <-time.After(cookiePollInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// looksBlocked inspects the rendered homepage for the markers of an
// anti-bot interstitial.
func looksBlocked(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	title := strings.ToLower(doc.Find("title").Text())
	if strings.Contains(title, "access denied") || strings.Contains(title, "are you a robot") {
		return true
	}
	return doc.Find("form#challenge-form, div.captcha, iframe[src*=captcha]").Length() > 0
}
