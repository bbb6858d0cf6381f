// Package settings supplies the system-wide discount constraints. The
// authoritative values live in a platform settings service; this package
// fetches them over HTTP behind a circuit breaker, caches a snapshot with a
// TTL, and falls back to safe static defaults when the upstream is down.
package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clearcart/promotion-engine/internal/domain"
)

// Provider yields the current discount-constraint snapshot. Evaluations
// read the snapshot once at the start and use it throughout, so one request
// never sees two different constraint sets.
type Provider interface {
	Constraints(ctx context.Context) (domain.DiscountConstraints, error)
}

// StaticProvider returns a fixed constraint set. Used in development mode
// and as the fallback when the settings service is unreachable.
type StaticProvider struct {
	constraints domain.DiscountConstraints
}

// NewStaticProvider creates a provider that always returns cons.
func NewStaticProvider(cons domain.DiscountConstraints) *StaticProvider {
	return &StaticProvider{constraints: cons}
}

func (p *StaticProvider) Constraints(context.Context) (domain.DiscountConstraints, error) {
	return p.constraints, nil
}

// Doer is the HTTP surface the provider needs; satisfied by both
// httpclient.Client and httpclient.CircuitBreakerClient.
type Doer interface {
	Get(ctx context.Context, url string) (*http.Response, error)
}

// HTTPProvider fetches constraints from the settings service.
type HTTPProvider struct {
	client Doer
	url    string
}

// NewHTTPProvider creates a provider reading from the given endpoint. The
// endpoint returns a JSON body matching domain.DiscountConstraints.
func NewHTTPProvider(client Doer, url string) *HTTPProvider {
	return &HTTPProvider{client: client, url: url}
}

func (p *HTTPProvider) Constraints(ctx context.Context) (domain.DiscountConstraints, error) {
	resp, err := p.client.Get(ctx, p.url)
	if err != nil {
		return domain.DiscountConstraints{}, fmt.Errorf("fetch discount settings: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return domain.DiscountConstraints{}, fmt.Errorf("fetch discount settings: unexpected status %d", resp.StatusCode)
	}

	var cons domain.DiscountConstraints
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&cons); err != nil {
		return domain.DiscountConstraints{}, fmt.Errorf("decode discount settings: %w", err)
	}
	return cons, nil
}

// CachedProvider wraps another provider with a TTL snapshot cache. On
// refresh failure it serves the last good snapshot (stale reads beat
// unavailability here), falling back to the configured defaults when no
// snapshot has ever been loaded.
type CachedProvider struct {
	inner    Provider
	fallback domain.DiscountConstraints
	ttl      time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.Mutex
	snapshot  domain.DiscountConstraints
	fetchedAt time.Time
	primed    bool
}

// NewCachedProvider creates a caching provider. now is injectable for tests;
// pass time.Now in production.
func NewCachedProvider(inner Provider, fallback domain.DiscountConstraints, ttl time.Duration, now func() time.Time, logger *slog.Logger) *CachedProvider {
	return &CachedProvider{
		inner:    inner,
		fallback: fallback,
		ttl:      ttl,
		now:      now,
		logger:   logger,
	}
}

func (p *CachedProvider) Constraints(ctx context.Context) (domain.DiscountConstraints, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.primed && p.now().Sub(p.fetchedAt) < p.ttl {
		return p.snapshot, nil
	}

	cons, err := p.inner.Constraints(ctx)
	if err != nil {
		if p.primed {
			p.logger.WarnContext(ctx, "settings refresh failed, serving stale snapshot",
				"age", p.now().Sub(p.fetchedAt).String(), "error", err)
			return p.snapshot, nil
		}
		p.logger.WarnContext(ctx, "settings fetch failed, using static defaults", "error", err)
		return p.fallback, nil
	}

	p.snapshot = cons
	p.fetchedAt = p.now()
	p.primed = true
	return cons, nil
}
