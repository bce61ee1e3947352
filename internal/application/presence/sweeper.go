package presence

import (
	"context"
	"fmt"
	"time"

	redisrepo "parley/backend/internal/infrastructure/redis"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper purges expired member entries on a fixed interval and rebroadcasts
// the member list of every room it changed. Every step is idempotent, so
// redundant sweepers on multiple processes are harmless.
type Sweeper struct {
	store    Store
	pub      Publisher
	interval time.Duration
	log      *zap.Logger
	cron     *cron.Cron
}

func NewSweeper(store Store, pub Publisher, interval time.Duration, log *zap.Logger) *Sweeper {
	return &Sweeper{
		store:    store,
		pub:      pub,
		interval: interval,
		log:      log,
	}
}

func (w *Sweeper) Start() error {
	w.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := w.cron.AddFunc(fmt.Sprintf("@every %s", w.interval), func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.interval)
		defer cancel()
		if err := w.SweepOnce(ctx); err != nil {
			w.log.Warn("sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	w.cron.Start()
	return nil
}

func (w *Sweeper) Stop() {
	if w.cron != nil {
		<-w.cron.Stop().Done()
	}
}

// SweepOnce scans the room registry and purges each room. A room that fails
// stays in the registry and is retried next interval; cleanup is
// at-least-once and eventually consistent.
func (w *Sweeper) SweepOnce(ctx context.Context) error {
	rooms, err := w.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}
	for _, roomID := range rooms {
		removed, err := w.store.PurgeExpired(ctx, roomID)
		if err != nil {
			w.log.Warn("purge failed, retrying next sweep", zap.String("room", roomID), zap.Error(err))
			continue
		}
		if removed == 0 {
			continue
		}
		members, err := w.store.ListActive(ctx, roomID)
		if err != nil {
			w.log.Warn("member list read failed after purge", zap.String("room", roomID), zap.Error(err))
			continue
		}
		if len(members) == 0 {
			// Cascade already dropped the room; nobody left to notify.
			continue
		}
		ev, err := redisrepo.NewEvent(redisrepo.EventMembersUpdated, roomID, 0, &redisrepo.MembersUpdated{Members: members})
		if err != nil {
			w.log.Error("event marshal failed", zap.String("room", roomID), zap.Error(err))
			continue
		}
		if err := w.pub.Publish(ctx, ev); err != nil {
			w.log.Warn("sweep broadcast failed", zap.String("room", roomID), zap.Error(err))
		}
	}
	return nil
}
