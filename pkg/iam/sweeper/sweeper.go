// Package sweeper collects expired short-lived records: access tokens,
// refresh tokens, auth codes and ceremony challenges. Expiry checks at read
// time already reject stale records; the sweeper only reclaims storage.
package sweeper

import (
	"context"
	"time"

	"github.com/Abraxas-365/custodia/pkg/asyncx"
	"github.com/Abraxas-365/custodia/pkg/logx"
)

// Target is any store holding records with absolute expiry.
type Target interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

type namedTarget struct {
	name   string
	target Target
}

// Sweeper periodically deletes expired records from every registered target.
type Sweeper struct {
	interval time.Duration
	targets  []namedTarget
	now      func() time.Time
}

func New(interval time.Duration) *Sweeper {
	return &Sweeper{interval: interval, now: time.Now}
}

// Register adds a target. Not safe to call once Run has started.
func (s *Sweeper) Register(name string, target Target) *Sweeper {
	s.targets = append(s.targets, namedTarget{name: name, target: target})
	return s
}

// Run sweeps on the configured interval until the context is canceled.
// Intended to be started in its own goroutine from the composition root.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass over every target concurrently. Failures are logged
// and do not stop the other targets; the next tick retries.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.now()

	err := asyncx.ForEach(ctx, s.targets, func(ctx context.Context, nt namedTarget) error {
		deleted, err := nt.target.DeleteExpired(ctx, now)
		if err != nil {
			logx.WithError(err).WithField("target", nt.name).Warn("sweep failed")
			return err
		}
		if deleted > 0 {
			logx.WithFields(logx.Fields{
				"target":  nt.name,
				"deleted": deleted,
			}).Debug("swept expired records")
		}
		return nil
	})
	if err != nil {
		logx.WithError(err).Warn("sweep pass finished with errors")
	}
}
