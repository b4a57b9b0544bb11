package devbackend

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const purgeSchedule = "@every 10m"

// purger removes expired refresh tokens from the database on a schedule.
// Redis expires its keys by itself and needs no purger.
type purger struct {
	store  *GormStore
	cron   *cron.Cron
	logger zerolog.Logger
	now    func() time.Time
}

func newPurger(store *GormStore, logger zerolog.Logger, now func() time.Time) (*purger, error) {
	p := &purger{
		store:  store,
		cron:   cron.New(),
		logger: logger,
		now:    now,
	}
	if _, err := p.cron.AddFunc(purgeSchedule, p.run); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *purger) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	deleted, err := p.store.Purge(ctx, p.now())
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to purge expired refresh tokens")
		return
	}
	if deleted > 0 {
		p.logger.Info().Int64("deleted", deleted).Msg("Purged expired refresh tokens")
	}
}

func (p *purger) start() {
	p.cron.Start()
}

// stop waits for a running purge to finish
func (p *purger) stop() {
	<-p.cron.Stop().Done()
}
