// Package dashboard keeps the instructor's live view of the running session.
package dashboard

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"edutrack/internal/attendance"
	"edutrack/internal/metrics"
	"edutrack/internal/model"
)

// Snapshot is the dashboard state after one poll.
type Snapshot struct {
	Session          *model.AttendanceSession `json:"session"`
	Present          int                      `json:"present"`
	Absent           int                      `json:"absent"`
	Total            int                      `json:"total"`
	Rate             int                      `json:"rate"`
	RemainingSeconds int                      `json:"remainingSeconds"`
	Countdown        string                   `json:"countdown"`
	PolledAt         time.Time                `json:"polledAt"`
}

// Poller polls the store for the active session and fans snapshots out to
// subscribers.
type Poller struct {
	att      *attendance.Service
	interval time.Duration
	log      *log.Logger

	mu    sync.RWMutex
	snap  Snapshot
	ready bool
	subs  map[chan Snapshot]struct{}
}

// NewPoller creates a poller; interval <= 0 uses five seconds.
func NewPoller(att *attendance.Service, interval time.Duration, logger *log.Logger) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Poller{att: att, interval: interval, log: logger, subs: make(map[chan Snapshot]struct{})}
}

// Run polls until ctx is done. A failed poll keeps the previous snapshot.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		if _, err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("dashboard poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh polls once and publishes the result.
func (p *Poller) Refresh(ctx context.Context) (Snapshot, error) {
	active, err := p.att.Active(ctx)
	if err != nil {
		metrics.DashboardPolls.WithLabelValues("error").Inc()
		return p.Snapshot(), err
	}
	snap := Snapshot{Session: active, PolledAt: p.att.Now().UTC()}
	if active != nil {
		snap.Total = active.TotalStudents
		snap.Present, snap.Absent = attendance.Tally(active.TotalStudents, active.Students)
		snap.Rate = attendance.Rate(*active)
		if deadline, err := attendance.Deadline(*active, p.att.Location()); err == nil {
			snap.RemainingSeconds = attendance.Remaining(deadline, p.att.Now())
		}
		snap.Countdown = attendance.FormatCountdown(snap.RemainingSeconds)
		if snap.RemainingSeconds == 0 {
			p.expire(ctx, active)
		}
	}
	metrics.DashboardPolls.WithLabelValues("ok").Inc()
	p.publish(snap)
	return snap, nil
}

// expire ends a session whose countdown has reached zero.
func (p *Poller) expire(ctx context.Context, s *model.AttendanceSession) {
	ended, err := p.att.Expire(ctx, s.ID)
	switch {
	case errors.Is(err, attendance.ErrSessionEnded):
	case err != nil:
		p.log.Error("failed to end expired session", "id", s.ID, "err", err)
		return
	case ended:
		p.log.Info("session expired from dashboard", "id", s.ID)
	}
	s.Status = model.SessionEnded
}

// Snapshot returns the latest snapshot.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Ready reports whether at least one poll has succeeded.
func (p *Poller) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ready
}

// Subscribe registers for snapshots. The channel holds only the latest
// snapshot; slow readers skip intermediate ones. Call cancel to unsubscribe.
func (p *Poller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	p.mu.Lock()
	p.subs[ch] = struct{}{}
	if p.ready {
		ch <- p.snap
	}
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.subs, ch)
			p.mu.Unlock()
		})
	}
}

func (p *Poller) publish(snap Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap = snap
	p.ready = true
	for ch := range p.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
