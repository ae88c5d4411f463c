package service

import (
	"context"
	"time"

	"github.com/richardliu001/payment-ledger/internal/repo"
	"go.uber.org/zap"
)

// OutboxRelay publishes committed change notifications to the broker.
type OutboxRelay struct {
	repo  repo.RepositoryInterface
	batch int
	log   *zap.SugaredLogger
}

func NewOutboxRelay(r repo.RepositoryInterface, batch int, log *zap.SugaredLogger) *OutboxRelay {
	if batch <= 0 {
		batch = 100
	}
	return &OutboxRelay{repo: r, batch: batch, log: log}
}

// RunOnce sends one batch and returns how many events were marked processed.
// An event that fails to publish stays pending for the next round.
func (o *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	events, err := o.repo.PollOutbox(ctx, o.batch)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, evt := range events {
		if err := o.repo.PublishEvent(ctx, evt); err != nil {
			o.log.Errorf("publish id=%d: %v", evt.ID, err)
			continue
		}
		if err := o.repo.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			o.log.Errorf("mark processed id=%d: %v", evt.ID, err)
			continue
		}
		o.log.Debugf("event %d sent", evt.ID)
		sent++
	}
	return sent, nil
}

// Run polls every interval until ctx is done.
func (o *OutboxRelay) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := o.RunOnce(ctx); err != nil {
				o.log.Errorf("poll outbox: %v", err)
			}
		}
	}
}
