// Package sessionpool acquires and rotates the anti-bot credential sets the
// upstream search API demands. Credentials come from simulating a genuine
// browser visit; they expire together and regenerate together.
package sessionpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// IdentityToken is the cookie the upstream edge uses to recognise a visitor
// that has passed its bot checks. A credential bag without it is useless.
const IdentityToken = "auid"

const (
	acquireAttempts = 3
	acquireBackoff  = 5 * time.Second
)

// ErrNoCredentials means no slot produced a usable credential, which is
// fatal for the batch run that owns this pool.
var ErrNoCredentials = errors.New("no usable session credentials acquired")

// Credential is a bag of key/value tokens captured from one browser visit.
type Credential struct {
	Tokens     map[string]string
	AcquiredAt time.Time
}

// Valid reports whether the bag carries the identity token.
func (c Credential) Valid() bool {
	return c.Tokens[IdentityToken] != ""
}

type Options struct {
	// Homepage is the upstream page a visit navigates to.
	Homepage string
	// WaitTimeout bounds how long one visit waits for the identity token
	// to show up in the cookie jar.
	WaitTimeout time.Duration
	// TTL is how long an acquired set stays valid. Defaults to 30 minutes,
	// matching the upstream edge's observed session lifetime.
	TTL time.Duration
	// RetryBackoff is the fixed wait between failed visit attempts.
	RetryBackoff time.Duration
	// ChromePath overrides the browser binary; empty lets rod download its
	// own chromium.
	ChromePath string
	// Visit overrides the default automated-browser visit. Tests and
	// alternative acquisition strategies hook in here.
	Visit func(ctx context.Context) (map[string]string, error)
}

type Pool struct {
	opts    Options
	backoff time.Duration

	// visit runs one automated browser session and returns the resulting
	// cookie jar. Swappable so tests do not need a browser.
	visit func(ctx context.Context) (map[string]string, error)

	mu         sync.Mutex
	set        []Credential
	acquiredAt time.Time
}

func New(opts Options) *Pool {
	if opts.TTL == 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = 20 * time.Second
	}
	if opts.RetryBackoff == 0 {
		opts.RetryBackoff = acquireBackoff
	}
	p := &Pool{opts: opts, backoff: opts.RetryBackoff}
	p.visit = opts.Visit
	if p.visit == nil {
		p.visit = p.browserVisit
	}
	return p
}

// Acquire obtains count independent credentials. It is idempotent within
// the TTL window: a second call before expiry returns the existing set
// untouched. After expiry the whole set is discarded and regenerated, never
// partially reused.
func (p *Pool) Acquire(ctx context.Context, count int) ([]Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.set) > 0 && time.Since(p.acquiredAt) < p.opts.TTL {
		return p.set, nil
	}

	started := time.Now()
	set := make([]Credential, 0, count)
	for slot := 0; slot < count; slot++ {
		credential, err := p.acquireSlot(ctx)
		if err != nil {
			slog.WarnContext(ctx, "abandoning session slot", "slot", slot, "err", err)
			continue
		}
		set = append(set, credential)
	}

	if len(set) == 0 {
		return nil, ErrNoCredentials
	}

	p.set = set
	p.acquiredAt = time.Now()
	slog.InfoContext(ctx, "session pool regenerated",
		"requested", count,
		"acquired", len(set),
		"elapsed", time.Since(started),
	)
	return p.set, nil
}

func (p *Pool) acquireSlot(ctx context.Context) (Credential, error) {
	var lastErr error
	for attempt := 1; attempt <= acquireAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(p.backoff):
			case <-ctx.Done():
				return Credential{}, ctx.Err()
			}
		}

		// navigation gets the same budget as the cookie wait, so a
		// tar-pitted page load cannot hold the pool mutex indefinitely
		visitCtx, cancel := context.WithTimeout(ctx, 2*p.opts.WaitTimeout)
		tokens, err := p.visit(visitCtx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}

		credential := Credential{Tokens: tokens, AcquiredAt: time.Now()}
		if !credential.Valid() {
			lastErr = fmt.Errorf("visit yielded no %q token", IdentityToken)
			continue
		}
		return credential, nil
	}
	return Credential{}, fmt.Errorf("gave up after %d attempts: %w", acquireAttempts, lastErr)
}

// Assign hands out credentials by round robin over the acquired set.
// Workers share credentials when fewer were acquired than there are
// workers.
func (p *Pool) Assign(workerIndex int) *Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.set) == 0 {
		return nil
	}
	return &p.set[workerIndex%len(p.set)]
}

// Size reports how many credentials the current set holds.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.set)
}
