package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"go.uber.org/zap"
)

const preloadBatchSize = 256

// Report summarizes one preload run.
type Report struct {
	Purged  int
	Loaded  map[jwt.Kind]int
	Skipped int
}

// Preloader rebuilds the revocation cache from the durable log.
type Preloader struct {
	revoker *Revoker
	store   store.Store
	logger  *zap.Logger
}

// NewPreloader returns a Preloader reading from st and writing through r.
func NewPreloader(r *Revoker, st store.Store, logger *zap.Logger) (*Preloader, error) {
	if r == nil || st == nil {
		return nil, errors.New("revocation: preloader needs a revoker and a store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Preloader{revoker: r, store: st, logger: logger}, nil
}

// Run purges every cache entry under the revoker's prefix, then writes one
// entry for each durable revocation still inside its kind's validity window,
// with TTL equal to what remains of that window. Running it again yields the
// same cache contents.
func (p *Preloader) Run(ctx context.Context) (Report, error) {
	report := Report{Loaded: make(map[jwt.Kind]int, 3)}

	purged, err := p.revoker.cache.purge(ctx)
	report.Purged = purged
	if err != nil {
		return report, fmt.Errorf("purge revocation cache: %w", err)
	}

	now := p.revoker.now()
	for _, kind := range []jwt.Kind{jwt.KindAccess, jwt.KindRefresh, jwt.KindResetPassword} {
		loaded, skipped, err := p.loadKind(ctx, kind, now)
		report.Loaded[kind] = loaded
		report.Skipped += skipped
		if err != nil {
			return report, fmt.Errorf("preload %s revocations: %w", kind, err)
		}
	}

	p.logger.Info("revocation cache preloaded",
		zap.Int("purged", report.Purged),
		zap.Int("refresh", report.Loaded[jwt.KindRefresh]),
		zap.Int("reset_password", report.Loaded[jwt.KindResetPassword]),
		zap.Int("access", report.Loaded[jwt.KindAccess]),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (p *Preloader) loadKind(ctx context.Context, kind jwt.Kind, now time.Time) (loaded, skipped int, err error) {
	ttl := p.revoker.ttl[kind]

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback(ctx)

	batch := make([]cacheEntry, 0, preloadBatchSize)
	flush := func() error {
		if err := p.revoker.cache.setMany(ctx, batch); err != nil {
			return err
		}
		loaded += len(batch)
		batch = batch[:0]
		return nil
	}

	err = tx.RevocationsSince(ctx, string(kind), now.Add(-ttl), func(r store.Revocation) error {
		remaining := ttl - now.Sub(r.RevokedAt)
		if remaining <= 0 {
			skipped++
			return nil
		}
		if remaining > ttl {
			remaining = ttl
		}
		batch = append(batch, cacheEntry{kind: kind, digest: r.TokenDigest, ttl: remaining})
		if len(batch) >= preloadBatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return loaded, skipped, err
	}
	if err := flush(); err != nil {
		return loaded, skipped, err
	}
	return loaded, skipped, nil
}
