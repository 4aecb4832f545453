package event

import "context"

// Status is returned by a step callback to tell the loop what the event
// wants next tick.
type Status int

const (
	// StatusSameStep repeats the current step on the next tick.
	StatusSameStep Status = iota
	// StatusNextStep advances to the next step; past the last step the
	// event is done.
	StatusNextStep
	// StatusPrevStep goes back one step; below step 0 the event is done.
	StatusPrevStep
	// StatusDone terminates the event regardless of its step index.
	StatusDone
)

func (s Status) String() string {
	switch s {
	case StatusSameStep:
		return "same-step"
	case StatusNextStep:
		return "next-step"
	case StatusPrevStep:
		return "prev-step"
	case StatusDone:
		return "done"
	default:
		return "unknown"
	}
}

// Priority decides how an event is scheduled when added to the Manager.
type Priority int

const (
	// PriorityInstant executes the event to completion inside Add and
	// never enters the live list.
	PriorityInstant Priority = iota
	// PriorityFirst inserts the event at the front of the live list.
	PriorityFirst
	// PriorityLast appends the event at the back of the live list.
	PriorityLast
)

func (p Priority) String() string {
	switch p {
	case PriorityInstant:
		return "instant"
	case PriorityFirst:
		return "first"
	case PriorityLast:
		return "last"
	default:
		return "unknown"
	}
}

// Step is a single stage of an event's state machine. It is invoked once
// per tick while it is the event's current step. The returned Status drives
// the step index; an error aborts the tick (the loop does not catch it).
type Step func(ctx context.Context, ev Event) (Status, error)

// Event is a small state machine advanced once per tick by the Manager.
// Implementations are expected to be pointer types; the Manager tracks
// live events by interface identity.
type Event interface {
	// Steps returns the ordered step callbacks. The step index starts at 0.
	Steps() []Step
	// Group returns the group mask the event belongs to.
	Group() Group
	// Priority returns the scheduling priority.
	Priority() Priority
}

// Base is a ready-made Event implementation for embedding.
type Base struct {
	steps    []Step
	group    Group
	priority Priority
}

// NewBase builds the embeddable event core. A nil or empty step list
// produces an event that completes on its first advance.
func NewBase(priority Priority, group Group, steps ...Step) Base {
	return Base{steps: steps, group: group, priority: priority}
}

func (b *Base) Steps() []Step      { return b.steps }
func (b *Base) Group() Group       { return b.group }
func (b *Base) Priority() Priority { return b.priority }
