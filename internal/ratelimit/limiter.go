package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/chatorder/internal/config"
	orgdomain "github.com/smallbiznis/chatorder/internal/organization/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tierCacheTTL = time.Minute

// Decision is the limiter verdict surfaced to HTTP middleware.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter enforces per-tenant sliding-window quotas. Identity is the
// organization when known, the client IP otherwise; reads get a larger
// window than writes.
type Limiter struct {
	window *SlidingWindow
	db     *gorm.DB
	cfg    config.RateLimitConfig
	log    *zap.Logger

	mu    sync.Mutex
	tiers map[string]cachedTier
}

type cachedTier struct {
	tier      orgdomain.Tier
	expiresAt time.Time
}

func NewLimiter(client *redis.Client, conn *gorm.DB, cfg config.Config, log *zap.Logger) *Limiter {
	return &Limiter{
		window: NewSlidingWindow(client),
		db:     conn,
		cfg:    cfg.RateLimit,
		log:    log.Named("ratelimit"),
		tiers:  make(map[string]cachedTier),
	}
}

// AllowOrg checks one request for an authenticated organization.
func (l *Limiter) AllowOrg(ctx context.Context, orgID string, isRead bool) (*Decision, error) {
	tier := l.resolveTier(ctx, orgID)
	return l.allow(ctx, "rl:org:"+orgID, tier, isRead)
}

// AllowIP checks one request for an unauthenticated caller. Anonymous
// traffic always gets the free-tier window.
func (l *Limiter) AllowIP(ctx context.Context, ip string, isRead bool) (*Decision, error) {
	return l.allow(ctx, "rl:ip:"+ip, orgdomain.TierFree, isRead)
}

func (l *Limiter) allow(ctx context.Context, scope string, tier orgdomain.Tier, isRead bool) (*Decision, error) {
	max := l.maxFor(tier)
	key := scope + ":write"
	if isRead {
		max *= l.cfg.ReadMultiplier
		key = scope + ":read"
	}

	verdict, err := l.window.Allow(ctx, key, uuid.NewString(), max, l.cfg.Window)
	if err != nil {
		return nil, err
	}
	return &Decision{
		Allowed:    verdict.Allowed,
		Limit:      max,
		Remaining:  verdict.Remaining,
		RetryAfter: verdict.RetryAfter,
	}, nil
}

func (l *Limiter) maxFor(tier orgdomain.Tier) int {
	switch tier {
	case orgdomain.TierEnterprise:
		return l.cfg.EnterpriseMax
	case orgdomain.TierPro:
		return l.cfg.ProMax
	default:
		return l.cfg.FreeMax
	}
}

// resolveTier looks up the organization's tier, caching briefly. A lookup
// failure degrades to the free tier rather than letting traffic through
// unmetered.
func (l *Limiter) resolveTier(ctx context.Context, orgID string) orgdomain.Tier {
	now := time.Now()

	l.mu.Lock()
	if cached, ok := l.tiers[orgID]; ok && now.Before(cached.expiresAt) {
		l.mu.Unlock()
		return cached.tier
	}
	l.mu.Unlock()

	var org orgdomain.Organization
	err := l.db.WithContext(ctx).Select("tier").Where("id = ?", orgID).First(&org).Error
	if err != nil {
		l.log.Warn("tier lookup failed, assuming free tier",
			zap.String("org_id", orgID),
			zap.Error(err),
		)
		return orgdomain.TierFree
	}
	tier := org.Tier
	if !orgdomain.ValidTier(tier) {
		tier = orgdomain.TierFree
	}

	l.mu.Lock()
	l.tiers[orgID] = cachedTier{tier: tier, expiresAt: now.Add(tierCacheTTL)}
	l.mu.Unlock()
	return tier
}
