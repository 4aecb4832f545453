package event

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gametools/internal/logger"
)

// DefaultTickInterval is the loop period used when the caller does not
// configure one. 15ms keeps pixel polling and input timing responsive
// without saturating a core.
const DefaultTickInterval = 15 * time.Millisecond

// Notice describes an event lifecycle change, published to subscribers.
type Notice struct {
	Kind  string `json:"kind"` // "added", "done", "state"
	Event string `json:"event,omitempty"`
	Group uint32 `json:"group,omitempty"`
	State string `json:"state,omitempty"`
}

// Info is a read-only snapshot of one live event.
type Info struct {
	Type     string `json:"type"`
	Group    uint32 `json:"group"`
	Priority string `json:"priority"`
	Step     int    `json:"step"`
}

type liveEvent struct {
	ev   Event
	step int
	done bool
}

// Manager holds the current state and the live events and advances both once
// per tick. All list mutation happens inside a tick or inside Add; queries
// may run concurrently from other goroutines (the API server does).
type Manager struct {
	mu        sync.RWMutex
	live      []*liveEvent
	current   State
	pending   State
	ticks     uint64
	listeners []chan Notice
}

// NewManager creates a manager whose current state is initial. A nil initial
// state falls back to IdleState.
func NewManager(initial State) *Manager {
	if initial == nil {
		initial = IdleState{}
	}
	return &Manager{current: initial}
}

// Add schedules an event. Instant events run to completion inline, before
// Add returns, and never enter the live list. First/Last events are inserted
// at the matching end of the live list; adding the same event value twice is
// a no-op.
func (m *Manager) Add(ctx context.Context, ev Event) error {
	if ev == nil {
		return fmt.Errorf("add: nil event")
	}

	if ev.Priority() == PriorityInstant {
		return m.runInstant(ctx, ev)
	}

	m.mu.Lock()
	for _, le := range m.live {
		if le.ev == ev {
			m.mu.Unlock()
			return nil
		}
	}
	le := &liveEvent{ev: ev}
	if ev.Priority() == PriorityFirst {
		m.live = append([]*liveEvent{le}, m.live...)
	} else {
		m.live = append(m.live, le)
	}
	m.mu.Unlock()

	m.notify(Notice{Kind: "added", Event: typeName(ev), Group: uint32(ev.Group())})
	return nil
}

// runInstant drives the event's step machine to completion synchronously.
func (m *Manager) runInstant(ctx context.Context, ev Event) error {
	steps := ev.Steps()
	step := 0
	for {
		if step < 0 || step >= len(steps) {
			return nil
		}
		status, err := steps[step](ctx, ev)
		if err != nil {
			return err
		}
		switch status {
		case StatusNextStep:
			step++
		case StatusPrevStep:
			step--
		case StatusDone:
			return nil
		}
	}
}

// QueueState queues a state transition. It is applied at the top of the next
// tick: the old state's OnStop runs, the state is swapped, the new state's
// OnStart runs, and the same tick then continues with OnUpdate.
func (m *Manager) QueueState(s State) {
	m.mu.Lock()
	m.pending = s
	m.mu.Unlock()
}

// CurrentState returns the current state.
func (m *Manager) CurrentState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Ticks returns the number of completed ticks.
func (m *Manager) Ticks() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.ticks
}

// Tick advances the loop once: apply a pending state transition, update the
// current state, advance every live event one step, then remove finished
// events. A step or hook error aborts the tick and is returned; the loop
// does not isolate failures between events.
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	old := m.current
	m.mu.Unlock()

	if pending != nil {
		if err := old.OnStop(ctx); err != nil {
			return fmt.Errorf("state stop: %w", err)
		}
		m.mu.Lock()
		m.current = pending
		m.mu.Unlock()
		if err := pending.OnStart(ctx); err != nil {
			return fmt.Errorf("state start: %w", err)
		}
		m.notify(Notice{Kind: "state", State: typeName(pending)})
	}

	current := m.CurrentState()
	if err := current.OnUpdate(ctx); err != nil {
		return fmt.Errorf("state update: %w", err)
	}

	// Advance a snapshot of the live list so step callbacks may add new
	// events without affecting this pass.
	m.mu.RLock()
	pass := make([]*liveEvent, len(m.live))
	copy(pass, m.live)
	m.mu.RUnlock()

	for _, le := range pass {
		if le.done {
			continue
		}
		steps := le.ev.Steps()
		if le.step < 0 || le.step >= len(steps) {
			m.finish(le)
			continue
		}
		status, err := steps[le.step](ctx, le.ev)
		if err != nil {
			return fmt.Errorf("event %s step %d: %w", typeName(le.ev), le.step, err)
		}
		switch status {
		case StatusSameStep:
		case StatusNextStep:
			m.mu.Lock()
			le.step++
			out := le.step >= len(steps)
			m.mu.Unlock()
			if out {
				m.finish(le)
			}
		case StatusPrevStep:
			m.mu.Lock()
			le.step--
			out := le.step < 0
			m.mu.Unlock()
			if out {
				m.finish(le)
			}
		case StatusDone:
			m.finish(le)
		}
	}

	// Batch removal after the full pass, never during iteration.
	m.mu.Lock()
	kept := m.live[:0]
	for _, le := range m.live {
		if !le.done {
			kept = append(kept, le)
		}
	}
	m.live = kept
	m.ticks++
	m.mu.Unlock()

	return nil
}

func (m *Manager) finish(le *liveEvent) {
	m.mu.Lock()
	le.done = true
	m.mu.Unlock()
	m.notify(Notice{Kind: "done", Event: typeName(le.ev), Group: uint32(le.ev.Group())})
}

// Run drives Tick at the given interval until ctx is cancelled or a tick
// fails. The in-flight tick always completes; on shutdown the current
// state's OnStop runs before Run returns. Ticks never overlap: the next one
// is not scheduled until the previous (including any blocking step work)
// finished.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	log := logger.WithComponent("event-loop")
	log.Info().Dur("interval", interval).Msg("Event loop started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err := m.CurrentState().OnStop(context.WithoutCancel(ctx))
			log.Info().Uint64("ticks", m.Ticks()).Msg("Event loop stopped")
			return err
		case <-ticker.C:
			if err := m.Tick(ctx); err != nil {
				log.Error().Err(err).Msg("Tick failed, stopping loop")
				return err
			}
		}
	}
}

// EventsByGroup returns all live events whose group mask intersects mask.
func (m *Manager) EventsByGroup(mask Group) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Event
	for _, le := range m.live {
		if !le.done && le.ev.Group().Has(mask) {
			out = append(out, le.ev)
		}
	}
	return out
}

// EventsByType returns all live events of the concrete type T.
func EventsByType[T Event](m *Manager) []T {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []T
	for _, le := range m.live {
		if le.done {
			continue
		}
		if ev, ok := le.ev.(T); ok {
			out = append(out, ev)
		}
	}
	return out
}

// LiveCount returns the number of live events.
func (m *Manager) LiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.live)
}

// Snapshot returns a read-only view of the live events.
func (m *Manager) Snapshot() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]Info, 0, len(m.live))
	for _, le := range m.live {
		infos = append(infos, Info{
			Type:     typeName(le.ev),
			Group:    uint32(le.ev.Group()),
			Priority: le.ev.Priority().String(),
			Step:     le.step,
		})
	}
	return infos
}

// Subscribe registers a listener for lifecycle notices. Full channels are
// skipped, never blocked on.
func (m *Manager) Subscribe() chan Notice {
	ch := make(chan Notice, 16)
	m.mu.Lock()
	m.listeners = append(m.listeners, ch)
	m.mu.Unlock()
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (m *Manager) Unsubscribe(ch chan Notice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, listener := range m.listeners {
		if listener == ch {
			m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
			close(ch)
			break
		}
	}
}

func (m *Manager) notify(n Notice) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, listener := range m.listeners {
		select {
		case listener <- n:
		default:
		}
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
