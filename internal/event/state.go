package event

import "context"

// State is the polymorphic game state the loop drives. Exactly one state is
// current at any time. Transitions are queued via Manager.QueueState and
// applied between ticks, never mid-tick: the old state's OnStop always runs
// before the new state's OnStart, with no OnUpdate in between.
type State interface {
	OnStart(ctx context.Context) error
	OnUpdate(ctx context.Context) error
	OnStop(ctx context.Context) error
}

// IdleState is a no-op State, useful as the initial state of a Manager.
type IdleState struct{}

func (IdleState) OnStart(context.Context) error  { return nil }
func (IdleState) OnUpdate(context.Context) error { return nil }
func (IdleState) OnStop(context.Context) error   { return nil }
