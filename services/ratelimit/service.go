package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config holds the token bucket parameters applied to every key
type Config struct {
	PerSecond float64       // refill rate
	Burst     int           // bucket size
	IdleTTL   time.Duration // buckets unused for longer are evicted
}

// DefaultConfig returns the login throttling defaults
func DefaultConfig() Config {
	return Config{
		PerSecond: 1,
		Burst:     5,
		IdleTTL:   5 * time.Minute,
	}
}

// RateLimitResult represents the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimitService keeps one token bucket per key (client IP, email, ...)
type RateLimitService struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimitService creates a new RateLimitService instance
func NewRateLimitService(cfg Config, logger *zap.Logger) *RateLimitService {
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = DefaultConfig().PerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultConfig().Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultConfig().IdleTTL
	}
	return &RateLimitService{
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// CheckLimit consumes one token from key's bucket
func (s *RateLimitService) CheckLimit(key string) RateLimitResult {
	now := s.now()

	s.mu.Lock()
	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(s.cfg.PerSecond), s.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now
	s.mu.Unlock()

	if b.lim.AllowN(now, 1) {
		return RateLimitResult{
			Allowed:   true,
			Remaining: int(math.Floor(b.lim.TokensAt(now))),
		}
	}

	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)

	return RateLimitResult{Allowed: false, RetryAfter: delay}
}

// CleanupOldRequests evicts buckets idle for longer than the configured TTL
// and returns how many were removed
func (s *RateLimitService) CleanupOldRequests() int {
	cutoff := s.now().Add(-s.cfg.IdleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker evicts idle buckets every interval until ctx is done
func (s *RateLimitService) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started rate limit cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("idle_ttl", s.cfg.IdleTTL))

	for {
		select {
		case <-ticker.C:
			if n := s.CleanupOldRequests(); n > 0 {
				s.logger.Debug("evicted idle rate limit buckets", zap.Int("count", n))
			}
		case <-ctx.Done():
			s.logger.Info("stopping rate limit cleanup worker")
			return
		}
	}
}

// Len returns the number of tracked keys
func (s *RateLimitService) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}
