package revocation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authcore/jwt"
	"github.com/MrEthical07/authcore/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix is the cache key namespace used when Config.Prefix is empty.
const DefaultPrefix = "blacklist"

// Config configures a Revoker.
type Config struct {
	// Prefix namespaces cache keys. Preload purges everything under it.
	Prefix string
	// TTL is the maximum lifetime of each token kind. A cache entry lives
	// at most this long after the revocation.
	TTL map[jwt.Kind]time.Duration
	// OnCacheWriteFailure is called after a best-effort cache write fails.
	OnCacheWriteFailure func()
	Now                 func() time.Time
}

// Revoker revokes tokens and answers revocation checks.
type Revoker struct {
	cache  *cache
	ttl    map[jwt.Kind]time.Duration
	logger *zap.Logger
	now    func() time.Time
	onFail func()
}

// New returns a Revoker writing its cache entries to client.
func New(client redis.UniversalClient, cfg Config, logger *zap.Logger) (*Revoker, error) {
	if client == nil {
		return nil, errors.New("revocation: redis client is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	for _, kind := range []jwt.Kind{jwt.KindAccess, jwt.KindRefresh, jwt.KindResetPassword} {
		if cfg.TTL[kind] <= 0 {
			return nil, fmt.Errorf("revocation: ttl for %s must be > 0", kind)
		}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.OnCacheWriteFailure == nil {
		cfg.OnCacheWriteFailure = func() {}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := make(map[jwt.Kind]time.Duration, len(cfg.TTL))
	for k, v := range cfg.TTL {
		ttl[k] = v
	}
	return &Revoker{
		cache:  &cache{redis: client, prefix: cfg.Prefix},
		ttl:    ttl,
		logger: logger,
		now:    cfg.Now,
		onFail: cfg.OnCacheWriteFailure,
	}, nil
}

// Digest returns the identifier under which token is recorded.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Key returns the cache key of token of the given kind.
func (r *Revoker) Key(kind jwt.Kind, token string) string {
	return r.cache.key(kind, Digest(token))
}

// TTL returns the cache lifetime of a revocation of the given kind.
func (r *Revoker) TTL(kind jwt.Kind) time.Duration {
	return r.ttl[kind]
}

// Record appends a revocation record through tx. The record becomes durable
// when the caller commits tx; the cache is left untouched until Publish. A
// token of kind that is already recorded yields an error wrapping
// store.ErrConflict.
func (r *Revoker) Record(ctx context.Context, tx store.Tx, kind jwt.Kind, token, revokedBy string) error {
	if !kind.Valid() {
		return fmt.Errorf("revocation: unknown kind %q", kind)
	}
	err := tx.InsertRevocation(ctx, store.Revocation{
		TokenDigest: Digest(token),
		Kind:        string(kind),
		RevokedAt:   r.now().UTC(),
		RevokedBy:   revokedBy,
	})
	if err != nil {
		return fmt.Errorf("record revocation: %w", err)
	}
	return nil
}

// Publish writes the cache entry of a revocation whose record has been
// committed. A cache write failure is logged and counted, never returned.
func (r *Revoker) Publish(ctx context.Context, kind jwt.Kind, token string) {
	digest := Digest(token)
	if err := r.cache.set(ctx, kind, digest, r.ttl[kind]); err != nil {
		r.onFail()
		r.logger.Warn("revocation cache write failed",
			zap.String("kind", string(kind)),
			zap.String("digest", digest[:12]),
			zap.Error(err),
		)
	}
}

// IsRevoked checks the cache only. A miss means "not known to be revoked";
// Redis failures are returned, never reported as a miss.
func (r *Revoker) IsRevoked(ctx context.Context, kind jwt.Kind, token string) (bool, error) {
	return r.cache.exists(ctx, kind, Digest(token))
}

// IsRevokedAuthoritative checks the cache and falls back to the durable log
// through tx on a miss or a cache failure.
func (r *Revoker) IsRevokedAuthoritative(ctx context.Context, tx store.Tx, kind jwt.Kind, token string) (bool, error) {
	digest := Digest(token)
	hit, err := r.cache.exists(ctx, kind, digest)
	if err != nil {
		r.logger.Warn("revocation cache read failed, using store",
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
	}
	if hit {
		return true, nil
	}

	revoked, err := tx.RevocationExists(ctx, string(kind), digest)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return revoked, nil
}
