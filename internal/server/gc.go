package server

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/eternalApril/starlight/internal/config"
	"github.com/eternalApril/starlight/internal/metrics"
	"github.com/eternalApril/starlight/internal/storage"
	"go.uber.org/zap"
)

// Reaper is the active expiration mechanism: every interval it samples keys
// with a TTL and deletes the expired ones, repeating while the hit ratio stays high
type Reaper struct {
	storage storage.Storage
	cfg     config.GCConfig
	logger  *zap.Logger
	expired atomic.Int64
}

func NewReaper(s storage.Storage, cfg config.GCConfig, logger *zap.Logger) *Reaper {
	if cfg.SamplesPerCheck <= 0 {
		cfg.SamplesPerCheck = config.DefaultGCConfig().SamplesPerCheck
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = 1
	}
	return &Reaper{
		storage: s,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run triggers tick every interval until ctx is cancelled
func (r *Reaper) Run(ctx context.Context) {
	interval := r.cfg.Interval
	if interval <= 0 {
		interval = config.DefaultGCConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.tick()
		case <-ctx.Done():
			r.logger.Info("GC stopped")
			return
		}
	}
}

// tick runs sampling rounds until the expired share drops below the
// threshold or the round budget is spent. It returns the keys removed
func (r *Reaper) tick() int {
	total := 0
	for round := 0; round < r.cfg.MaxRounds; round++ {
		stats := r.storage.DeleteExpired(r.cfg.SamplesPerCheck)
		total += stats.Expired

		if r.logger.Core().Enabled(zap.DebugLevel) && stats.Sampled > 0 {
			r.logger.Debug("GC delete expired",
				zap.Int("sampled", stats.Sampled),
				zap.Int("expired", stats.Expired),
				zap.Float64("expired_ratio", stats.Ratio()),
			)
		}

		if stats.Sampled == 0 || stats.Ratio() < r.cfg.MatchThreshold {
			break
		}
	}

	if total > 0 {
		r.expired.Add(int64(total))
		metrics.ExpiredKeys.Add(float64(total))
	}

	return total
}

// Expired returns how many keys the reaper removed since start
func (r *Reaper) Expired() int64 {
	return r.expired.Load()
}
