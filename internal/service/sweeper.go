package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/andressep95/nfc-access-service/internal/metrics"
)

type SweeperConfig struct {
	Interval         time.Duration
	StaleAfter       time.Duration
	SessionRetention time.Duration
}

// SweepReport holds the rows touched by one pass; -1 marks a failed job
type SweepReport struct {
	StaleSessionsEnded int64
	SessionsPurged     int64
	TokensPurged       int64
}

// Sweeper runs the time-based maintenance jobs. Each job selects records by
// time filter only, so it never competes with request-time writes on the
// same rows.
type Sweeper struct {
	sessions *SessionService
	tokens   *TokenService
	cfg      SweeperConfig
	logger   *zap.Logger
}

func NewSweeper(sessions *SessionService, tokens *TokenService, cfg SweeperConfig, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	if cfg.SessionRetention <= 0 {
		cfg.SessionRetention = 90 * 24 * time.Hour
	}
	return &Sweeper{
		sessions: sessions,
		tokens:   tokens,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Sweeper started", zap.Duration("interval", s.cfg.Interval))
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes every job; a failing job does not skip the others
func (s *Sweeper) RunOnce(ctx context.Context) SweepReport {
	return SweepReport{
		StaleSessionsEnded: s.job("stale_sessions", func() (int64, error) {
			return s.sessions.CleanupStale(ctx, s.cfg.StaleAfter)
		}),
		SessionsPurged: s.job("session_retention", func() (int64, error) {
			return s.sessions.PurgeOlderThan(ctx, s.cfg.SessionRetention)
		}),
		TokensPurged: s.job("expired_tokens", func() (int64, error) {
			return s.tokens.PurgeExpired(ctx)
		}),
	}
}

func (s *Sweeper) job(name string, fn func() (int64, error)) int64 {
	n, err := fn()
	if err != nil {
		metrics.SweepFailuresTotal.WithLabelValues(name).Inc()
		s.logger.Error("Sweep job failed", zap.String("job", name), zap.Error(err))
		return -1
	}
	metrics.SweepRecordsTotal.WithLabelValues(name).Add(float64(n))
	if n > 0 {
		s.logger.Info("Sweep job completed", zap.String("job", name), zap.Int64("affected", n))
	}
	return n
}
