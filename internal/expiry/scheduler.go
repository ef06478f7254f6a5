// Package expiry ends attendance sessions when their window closes.
package expiry

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"edutrack/internal/attendance"
	"edutrack/internal/queue"
)

// Expirer ends sessions; implemented by *attendance.Service.
type Expirer interface {
	Expire(ctx context.Context, id string) (bool, error)
	ExpireDue(ctx context.Context) ([]string, error)
}

// Consumer is the read side of the session event queue.
type Consumer interface {
	Consume(ctx context.Context) (<-chan queue.Message, error)
}

// Scheduler arms a timer per created session and sweeps periodically for
// sessions whose timer was lost, e.g. across restarts.
type Scheduler struct {
	exp      Expirer
	consumer Consumer
	sweep    time.Duration
	log      *log.Logger
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*time.Timer
}

// New creates a scheduler; sweep <= 0 uses 30 seconds.
func New(exp Expirer, consumer Consumer, sweep time.Duration, logger *log.Logger) *Scheduler {
	if sweep <= 0 {
		sweep = 30 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Scheduler{
		exp:      exp,
		consumer: consumer,
		sweep:    sweep,
		log:      logger,
		now:      time.Now,
		timers:   make(map[string]*time.Timer),
	}
}

// Run processes events until ctx is done or the queue closes.
func (s *Scheduler) Run(ctx context.Context) error {
	messages, err := s.consumer.Consume(ctx)
	if err != nil {
		return err
	}
	defer s.stopAll()

	s.sweepOnce(ctx)
	ticker := time.NewTicker(s.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			s.handle(ctx, msg)
		}
	}
}

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Scheduler) handle(ctx context.Context, msg queue.Message) {
	switch msg.Type {
	case queue.SessionCreated:
		if msg.Deadline.IsZero() {
			s.log.Warn("session event without deadline", "session", msg.SessionID)
			return
		}
		s.schedule(ctx, msg.SessionID, msg.Deadline)
	case queue.SessionEnded:
		s.cancel(msg.SessionID)
	}
}

func (s *Scheduler) schedule(ctx context.Context, id string, deadline time.Time) {
	delay := deadline.Sub(s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(max(delay, 0), func() {
		s.mu.Lock()
		if s.timers[id] == t {
			delete(s.timers, id)
		}
		s.mu.Unlock()
		s.expire(ctx, id)
	})
	s.timers[id] = t
	s.log.Debug("expiry scheduled", "session", id, "in", delay.Round(time.Second))
}

func (s *Scheduler) cancel(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

func (s *Scheduler) expire(ctx context.Context, id string) {
	if ctx.Err() != nil {
		return
	}
	ended, err := s.exp.Expire(ctx, id)
	switch {
	case errors.Is(err, attendance.ErrSessionEnded), errors.Is(err, attendance.ErrSessionNotFound):
		s.log.Debug("session already gone", "session", id)
	case err != nil:
		s.log.Error("expire session failed", "session", id, "err", err)
	case ended:
		s.log.Info("session expired", "session", id)
	}
}

func (s *Scheduler) sweepOnce(ctx context.Context) {
	ended, err := s.exp.ExpireDue(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("expiry sweep failed", "err", err)
		}
		return
	}
	for _, id := range ended {
		s.cancel(id)
	}
	if len(ended) > 0 {
		s.log.Info("expiry sweep ended sessions", "count", len(ended))
	}
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}
