package event

import (
	"context"
	"errors"
	"testing"
)

// scripted is a test event whose steps return a fixed status sequence.
type scripted struct {
	Base
	calls []int // step indices observed, in invocation order
}

func newScripted(priority Priority, group Group, statuses ...Status) *scripted {
	ev := &scripted{}
	steps := make([]Step, len(statuses))
	for i, status := range statuses {
		idx, st := i, status
		steps[i] = func(ctx context.Context, _ Event) (Status, error) {
			ev.calls = append(ev.calls, idx)
			return st, nil
		}
	}
	ev.Base = NewBase(priority, group, steps...)
	return ev
}

func mustTick(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected tick error: %v", err)
	}
}

func TestEventWithNStepsFinishesAfterNAdvances(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityLast, Group1, StatusNextStep, StatusNextStep, StatusNextStep)
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	mustTick(t, m)
	if m.LiveCount() != 1 {
		t.Fatalf("expected event still live after 2 of 3 advances, have %d live", m.LiveCount())
	}

	mustTick(t, m)
	if m.LiveCount() != 0 {
		t.Fatalf("expected event removed after 3 advances from step 0, have %d live", m.LiveCount())
	}
	if len(ev.calls) != 3 {
		t.Fatalf("expected exactly 3 step invocations, got %d", len(ev.calls))
	}
}

func TestPrevStepFromStepZeroFinishesEvent(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityLast, Group1, StatusPrevStep, StatusNextStep)
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	if m.LiveCount() != 0 {
		t.Fatalf("expected event done after PrevStep from step 0, have %d live", m.LiveCount())
	}
	if len(ev.calls) != 1 || ev.calls[0] != 0 {
		t.Fatalf("expected a single invocation of step 0, got %v", ev.calls)
	}
}

func TestDoneStatusFinishesRegardlessOfIndex(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityLast, Group1, StatusDone, StatusNextStep, StatusNextStep)
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	if m.LiveCount() != 0 {
		t.Fatalf("expected Done at step 0 to remove the event, have %d live", m.LiveCount())
	}
}

func TestInstantEventRunsInlineAndIsNeverTracked(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityInstant, Group2, StatusNextStep, StatusNextStep)

	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if len(ev.calls) != 2 {
		t.Fatalf("expected both steps to run inside Add, got calls %v", ev.calls)
	}
	if m.LiveCount() != 0 {
		t.Fatalf("instant event must never enter the live list, have %d live", m.LiveCount())
	}
	if got := EventsByType[*scripted](m); len(got) != 0 {
		t.Fatalf("instant event must not appear in type queries, got %d", len(got))
	}
	if got := m.EventsByGroup(Group2); len(got) != 0 {
		t.Fatalf("instant event must not appear in group queries, got %d", len(got))
	}
}

func TestDuplicateAddIsNoOp(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityLast, Group1, StatusSameStep)
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if m.LiveCount() != 1 {
		t.Fatalf("expected duplicate add to be a no-op, have %d live", m.LiveCount())
	}
}

func TestPriorityFirstAdvancesBeforeLast(t *testing.T) {
	m := NewManager(nil)
	var order []string
	mk := func(name string, p Priority) *scripted {
		ev := &scripted{}
		ev.Base = NewBase(p, Group1, func(ctx context.Context, _ Event) (Status, error) {
			order = append(order, name)
			return StatusDone, nil
		})
		return ev
	}

	if err := m.Add(context.Background(), mk("last", PriorityLast)); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := m.Add(context.Background(), mk("first", PriorityFirst)); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	if len(order) != 2 || order[0] != "first" || order[1] != "last" {
		t.Fatalf("expected first-priority event to advance first, got %v", order)
	}
}

func TestGroupQueriesIntersectMasks(t *testing.T) {
	m := NewManager(nil)
	combined := newScripted(PriorityLast, Group3.Union(Group6), StatusSameStep)
	single := newScripted(PriorityLast, Group1, StatusSameStep)
	if err := m.Add(context.Background(), combined); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := m.Add(context.Background(), single); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	got := m.EventsByGroup(Group3)
	if len(got) != 1 {
		t.Fatalf("expected exactly one Group3 match, got %d", len(got))
	}
	if got[0] != Event(combined) {
		t.Fatalf("expected the group3|group6 event to match the Group3 query")
	}
}

// lifecycleState records its hook invocations into a shared trace.
type lifecycleState struct {
	name  string
	trace *[]string
}

func (s *lifecycleState) OnStart(context.Context) error {
	*s.trace = append(*s.trace, s.name+".start")
	return nil
}

func (s *lifecycleState) OnUpdate(context.Context) error {
	*s.trace = append(*s.trace, s.name+".update")
	return nil
}

func (s *lifecycleState) OnStop(context.Context) error {
	*s.trace = append(*s.trace, s.name+".stop")
	return nil
}

func TestStateTransitionOrdering(t *testing.T) {
	var trace []string
	a := &lifecycleState{name: "a", trace: &trace}
	b := &lifecycleState{name: "b", trace: &trace}

	m := NewManager(a)
	mustTick(t, m)

	m.QueueState(b)
	mustTick(t, m)

	want := []string{"a.update", "a.stop", "b.start", "b.update"}
	if len(trace) != len(want) {
		t.Fatalf("expected trace %v, got %v", want, trace)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("expected trace %v, got %v", want, trace)
		}
	}
	if m.CurrentState() != State(b) {
		t.Fatalf("expected state b to be current after the transition")
	}
}

func TestStepErrorAbortsTick(t *testing.T) {
	m := NewManager(nil)
	boom := errors.New("boom")
	ev := &scripted{}
	ev.Base = NewBase(PriorityLast, Group1, func(ctx context.Context, _ Event) (Status, error) {
		return StatusSameStep, boom
	})
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	if err := m.Tick(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected the step error to propagate from Tick, got %v", err)
	}
	if m.LiveCount() != 1 {
		t.Fatalf("expected failing event to stay live, have %d", m.LiveCount())
	}
}

func TestTwoStepEventEndToEnd(t *testing.T) {
	m := NewManager(nil)
	ev := newScripted(PriorityLast, Group1.Union(Group2), StatusNextStep, StatusDone)
	if err := m.Add(context.Background(), ev); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	if m.LiveCount() != 1 {
		t.Fatalf("expected event live after first tick, have %d", m.LiveCount())
	}
	if infos := m.Snapshot(); len(infos) != 1 || infos[0].Step != 1 {
		t.Fatalf("expected step index 1 after NextStep, got %+v", infos)
	}

	mustTick(t, m)
	if m.LiveCount() != 0 {
		t.Fatalf("expected event removed after Done, have %d live", m.LiveCount())
	}
	if got := EventsByType[*scripted](m); len(got) != 0 {
		t.Fatalf("expected no events of type after removal, got %d", len(got))
	}
}

func TestEventAddedDuringTickAdvancesNextTick(t *testing.T) {
	m := NewManager(nil)
	inner := newScripted(PriorityLast, Group4, StatusDone)
	outer := &scripted{}
	outer.Base = NewBase(PriorityLast, Group1, func(ctx context.Context, _ Event) (Status, error) {
		if err := m.Add(ctx, inner); err != nil {
			return StatusSameStep, err
		}
		return StatusDone, nil
	})
	if err := m.Add(context.Background(), outer); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}

	mustTick(t, m)
	if len(inner.calls) != 0 {
		t.Fatalf("event added mid-tick must not advance in the same tick")
	}
	if m.LiveCount() != 1 {
		t.Fatalf("expected only the inner event live, have %d", m.LiveCount())
	}

	mustTick(t, m)
	if m.LiveCount() != 0 {
		t.Fatalf("expected inner event to complete on the following tick")
	}
}

func TestGroupMaskAlgebra(t *testing.T) {
	combined := Group3.Union(Group6)
	if !combined.Has(Group3) || !combined.Has(Group6) {
		t.Fatalf("expected union to contain both operands")
	}
	if combined.Has(Group1) {
		t.Fatalf("expected union not to contain an unrelated group")
	}
	if Group3.Union(Group6) != Group6.Union(Group3) {
		t.Fatalf("expected union to be commutative")
	}
	if combined.Invert().Has(Group3) {
		t.Fatalf("expected inverted mask to exclude its own bits")
	}
	if !combined.Invert().Has(Group1) {
		t.Fatalf("expected inverted mask to include other bits")
	}
}
