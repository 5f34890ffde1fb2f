package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/samber/do"

	"github.com/mtbar/concerts/internal/bot"
	"github.com/mtbar/concerts/internal/config"
)

// Scheduler publishes the daily digest trigger
type Scheduler struct {
	publisher message.Publisher
	config    *config.Config
	logger    watermill.LoggerAdapter
	interval  time.Duration

	mu       sync.Mutex
	lastSent string

	// Channel to stop the scheduler
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new scheduler instance
func New(
	publisher message.Publisher,
	config *config.Config,
	logger watermill.LoggerAdapter,
) *Scheduler {
	interval := time.Duration(config.App.Scheduler.CheckIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}

	return &Scheduler{
		publisher: publisher,
		config:    config,
		logger:    logger,
		interval:  interval,
		stopCh:    make(chan struct{}),
	}
}

// Start runs the digest ticker until the context is cancelled or Stop is called
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting scheduler", watermill.LogFields{
		"digest_at": fmt.Sprintf("%02d:%02d", s.config.DigestHour, s.config.DigestMinute),
		"timezone":  s.config.Location.String(),
	})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler context cancelled", nil)
			return nil
		case <-s.stopCh:
			s.logger.Info("Scheduler stopped", nil)
			return nil
		case now := <-ticker.C:
			if _, err := s.Tick(now); err != nil {
				s.logger.Error("Failed to publish digest event", err, nil)
			}
		}
	}
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Tick publishes the digest event when the local time matches the digest time.
// At most one event is published per local day.
func (s *Scheduler) Tick(now time.Time) (bool, error) {
	local := now.In(s.config.Location)
	if !s.isDigestTime(local) {
		return false, nil
	}

	day := local.Format(time.DateOnly)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastSent == day {
		return false, nil
	}

	s.logger.Info("Digest time reached", watermill.LogFields{
		"time": local.Format(time.DateTime),
	})

	if err := s.publishDigestEvent(local); err != nil {
		return false, err
	}
	s.lastSent = day
	return true, nil
}

func (s *Scheduler) isDigestTime(t time.Time) bool {
	return t.Hour() == s.config.DigestHour && t.Minute() == s.config.DigestMinute
}

func (s *Scheduler) publishDigestEvent(timestamp time.Time) error {
	event := bot.DigestEvent{
		TriggeredAt: timestamp,
	}

	msgData, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal digest event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), msgData)
	return s.publisher.Publish(bot.TopicDigest, msg)
}

// RegisterDI registers scheduler in DI container
func RegisterDI(container *do.Injector) {
	do.Provide(container, func(i *do.Injector) (*Scheduler, error) {
		publisher := do.MustInvoke[message.Publisher](i)
		config := do.MustInvoke[*config.Config](i)
		logger := do.MustInvoke[watermill.LoggerAdapter](i)

		return New(publisher, config, logger), nil
	})
}
