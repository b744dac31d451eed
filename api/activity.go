package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"workboard-api/domain"
)

// ActivityPublisher delivers activity events to a downstream feed.
type ActivityPublisher interface {
	Publish(ctx context.Context, ev domain.Activity) error
}

// FeedOptions tunes the activity worker pool.
type FeedOptions struct {
	Workers        int
	Buffer         int
	PublishTimeout time.Duration
	HandoffTimeout time.Duration
}

// ActivityFeed hands activity events to a fixed set of workers that publish
// them in the background. Events that cannot be handed off in time are
// dropped and logged; request handling never waits on the feed.
type ActivityFeed struct {
	publisher ActivityPublisher
	logger    *log.Logger
	opts      FeedOptions

	mu     sync.RWMutex
	jobs   chan domain.Activity
	closed bool
	wg     sync.WaitGroup
}

// NewActivityFeed starts the workers. Close stops them.
func NewActivityFeed(publisher ActivityPublisher, logger *log.Logger, opts FeedOptions) *ActivityFeed {
	if publisher == nil {
		panic("activity publisher is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	f := newActivityFeed(publisher, logger, opts)
	for i := 0; i < f.opts.Workers; i++ {
		f.wg.Add(1)
		go f.worker(i)
	}
	logger.Infof("activity feed started, workers: %d, buffer: %d, timeout: %v, handoff: %v",
		f.opts.Workers, f.opts.Buffer, f.opts.PublishTimeout, f.opts.HandoffTimeout)
	return f
}

func newActivityFeed(publisher ActivityPublisher, logger *log.Logger, opts FeedOptions) *ActivityFeed {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 256
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 10 * time.Second
	}
	return &ActivityFeed{
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		jobs:      make(chan domain.Activity, opts.Buffer),
	}
}

func (f *ActivityFeed) worker(id int) {
	defer f.wg.Done()
	for ev := range f.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), f.opts.PublishTimeout)
		err := f.publisher.Publish(ctx, ev)
		cancel()
		if err != nil {
			f.logger.WithFields(log.Fields{
				"type":   ev.Type,
				"user":   ev.UserID,
				"board":  ev.BoardID,
				"task":   ev.TaskID,
				"worker": id,
				"error":  err.Error(),
			}).Warn("activity publish failed")
		}
	}
}

// Emit queues ev for publishing and reports whether it was accepted. A nil
// feed accepts nothing.
func (f *ActivityFeed) Emit(ev domain.Activity) bool {
	if f == nil {
		return false
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return false
	}

	select {
	case f.jobs <- ev:
		return true
	default:
	}

	if f.opts.HandoffTimeout > 0 {
		timer := time.NewTimer(f.opts.HandoffTimeout)
		defer timer.Stop()
		select {
		case f.jobs <- ev:
			return true
		case <-timer.C:
		}
	}

	f.logger.WithFields(log.Fields{"type": ev.Type, "board": ev.BoardID}).Warn("activity feed saturated; event dropped")
	return false
}

// Close stops accepting events and waits for queued ones to be published.
func (f *ActivityFeed) Close() {
	if f == nil {
		return
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	close(f.jobs)
	f.mu.Unlock()
	f.wg.Wait()
}
