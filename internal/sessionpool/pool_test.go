package sessionpool

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(visit func(ctx context.Context) (map[string]string, error)) *Pool {
	pool := New(Options{Homepage: "https://upstream.example", TTL: time.Hour})
	pool.visit = visit
	pool.backoff = time.Millisecond
	return pool
}

func validTokens(n int) func(ctx context.Context) (map[string]string, error) {
	counter := 0
	return func(ctx context.Context) (map[string]string, error) {
		counter++
		return map[string]string{
			IdentityToken: fmt.Sprintf("ident-%d", counter),
			"_sess":       fmt.Sprintf("sess-%d", counter),
		}, nil
	}
}

func TestAcquireIdempotentWithinTTL(t *testing.T) {
	pool := newTestPool(validTokens(0))

	first, err := pool.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, first, 3)

	second, err := pool.Acquire(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	// identical set, not a regenerated equivalent
	require.Equal(t, first[0].Tokens[IdentityToken], second[0].Tokens[IdentityToken])
	require.Equal(t, first[2].Tokens[IdentityToken], second[2].Tokens[IdentityToken])
}

func TestAcquireRegeneratesWholeSetAfterTTL(t *testing.T) {
	pool := newTestPool(validTokens(0))

	first, err := pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}

	// expire the set by backdating it
	pool.mu.Lock()
	pool.acquiredAt = time.Now().Add(-2 * time.Hour)
	pool.mu.Unlock()

	second, err := pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, second, 2)
	for i := range second {
		require.NotEqual(t, first[i].Tokens[IdentityToken], second[i].Tokens[IdentityToken])
	}
}

func TestAcquireRetriesMissingIdentityToken(t *testing.T) {
	attempts := 0
	pool := newTestPool(func(ctx context.Context) (map[string]string, error) {
		attempts++
		if attempts < 3 {
			return map[string]string{"_sess": "x"}, nil
		}
		return map[string]string{IdentityToken: "ident"}, nil
	})

	set, err := pool.Acquire(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	require.Len(t, set, 1)
	require.Equal(t, 3, attempts)
}

func TestAcquireBoundsStalledVisits(t *testing.T) {
	// an upstream edge that accepts the connection but never finishes
	// loading must not hang Acquire while it holds the pool mutex
	pool := New(Options{
		Homepage:     "https://upstream.example",
		WaitTimeout:  50 * time.Millisecond,
		RetryBackoff: time.Millisecond,
		Visit: func(ctx context.Context) (map[string]string, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	done := make(chan error, 1)
	go func() {
		_, err := pool.Acquire(context.Background(), 1)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrNoCredentials)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire never returned despite the per-visit deadline")
	}
}

func TestAcquireZeroUsableCredentialsIsFatal(t *testing.T) {
	pool := newTestPool(func(ctx context.Context) (map[string]string, error) {
		return nil, fmt.Errorf("net: connection refused")
	})

	_, err := pool.Acquire(context.Background(), 2)
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestAssignRoundRobinSharesCredentials(t *testing.T) {
	pool := newTestPool(validTokens(0))
	_, err := pool.Acquire(context.Background(), 2)
	if err != nil {
		t.Fatal(err)
	}

	a := pool.Assign(0)
	b := pool.Assign(1)
	c := pool.Assign(2)
	require.NotNil(t, a)
	require.NotEqual(t, a.Tokens[IdentityToken], b.Tokens[IdentityToken])
	// worker 2 wraps around onto worker 0's credential
	require.Equal(t, a.Tokens[IdentityToken], c.Tokens[IdentityToken])
}

func TestAssignEmptyPool(t *testing.T) {
	pool := newTestPool(validTokens(0))
	require.Nil(t, pool.Assign(0))
}
