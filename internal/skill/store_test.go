package skill

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type capture struct {
	events []Event
}

func (c *capture) sink(ev Event) { c.events = append(c.events, ev) }

func (c *capture) last() Event {
	if len(c.events) == 0 {
		return Event{}
	}
	return c.events[len(c.events)-1]
}

func newTestStore() (*Store, *fakeClock, *capture) {
	clk := newFakeClock()
	cap := &capture{}
	st := NewStore(30*time.Second, cap.sink, zap.NewNop())
	st.SetNow(clk.now)
	return st, clk, cap
}

func TestCreateEnforcesOneLiveSession(t *testing.T) {
	st, _, _ := newTestStore()

	if _, err := st.Create(1, 10, CreateConfig{MaxDuration: time.Second}); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := st.Create(1, 11, CreateConfig{MaxDuration: time.Second}); err != ErrActorAlreadyInSession {
		t.Fatalf("second create: got %v, want ErrActorAlreadyInSession", err)
	}
	// A different actor is unaffected.
	if _, err := st.Create(2, 10, CreateConfig{MaxDuration: time.Second}); err != nil {
		t.Fatalf("other actor create: %v", err)
	}
	if st.LiveCount() != 2 {
		t.Fatalf("live count: got %d, want 2", st.LiveCount())
	}
}

func TestCreateCapsExecutionDeadline(t *testing.T) {
	st, clk, _ := newTestStore()

	sess, err := st.Create(1, 10, CreateConfig{MaxDuration: 5 * time.Minute})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	want := clk.now().Add(30 * time.Second)
	if !sess.ExecutionExpiresAt.Equal(want) {
		t.Fatalf("deadline: got %v, want global cap %v", sess.ExecutionExpiresAt, want)
	}
}

func TestCreateEmitsCastingSnapshot(t *testing.T) {
	st, _, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	if len(cap.events) != 1 {
		t.Fatalf("events: got %d, want 1", len(cap.events))
	}
	ev := cap.last()
	if ev.State != "CASTING" || ev.SessionID != sess.ID || ev.SkillID != 10 {
		t.Fatalf("bad snapshot: %+v", ev)
	}
}

func TestIllegalTransitionRejectedWithoutEvent(t *testing.T) {
	st, _, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	n := len(cap.events)

	if st.Transition(sess.ID, StateRecovery, "nope") {
		t.Fatal("CASTING->RECOVERY must be rejected")
	}
	if sess.State != StateCasting {
		t.Fatalf("state mutated to %v", sess.State)
	}
	if len(cap.events) != n {
		t.Fatal("rejected transition must not emit")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	st, _, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	gen := sess.Generation

	if !st.Cancel(sess.ID, "interrupted") {
		t.Fatal("first cancel must succeed")
	}
	n := len(cap.events)
	if st.Cancel(sess.ID, "interrupted") {
		t.Fatal("second cancel must be a no-op")
	}
	if len(cap.events) != n {
		t.Fatal("second cancel must not emit")
	}
	if sess.Generation != gen+1 {
		t.Fatalf("generation: got %d, want %d", sess.Generation, gen+1)
	}
	if ev := cap.last(); ev.State != "CANCELLED" || ev.Reason != "interrupted" {
		t.Fatalf("bad terminal snapshot: %+v", ev)
	}
	if st.LiveByActor(1) != nil {
		t.Fatal("cancelled session still live")
	}
}

func TestRecoveryCompletesAtDeadline(t *testing.T) {
	st, clk, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: 2 * time.Second})
	st.Transition(sess.ID, StateActive, ReasonCastComplete)
	st.StartRecovery(sess.ID, time.Second)

	clk.advance(999 * time.Millisecond)
	st.Tick()
	if sess.State != StateRecovery {
		t.Fatalf("completed early: %v", sess.State)
	}

	clk.advance(time.Millisecond)
	st.Tick()
	if sess.State != StateCompleted {
		t.Fatalf("state: got %v, want COMPLETED", sess.State)
	}
	if ev := cap.last(); ev.Reason != ReasonRecoveryEnded {
		t.Fatalf("reason: got %q, want %q", ev.Reason, ReasonRecoveryEnded)
	}
}

func TestRecoveryAtHardDeadlineInstantCompletes(t *testing.T) {
	// Recovery end and hard deadline on the same instant: the timeout check
	// is strict, so the session completes normally.
	st, clk, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	st.Transition(sess.ID, StateActive, ReasonCastComplete)
	st.StartRecovery(sess.ID, time.Second)

	clk.advance(time.Second)
	st.Tick()
	if sess.State != StateCompleted {
		t.Fatalf("state: got %v, want COMPLETED", sess.State)
	}
	if ev := cap.last(); ev.Reason != ReasonRecoveryEnded {
		t.Fatalf("reason: got %q, want %q", ev.Reason, ReasonRecoveryEnded)
	}
}

func TestHardDeadlineCancelsWithTimeout(t *testing.T) {
	st, clk, cap := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	st.Transition(sess.ID, StateActive, ReasonCastComplete)
	gen := sess.Generation

	clk.advance(time.Second + time.Millisecond)
	st.Tick()
	if sess.State != StateCancelled {
		t.Fatalf("state: got %v, want CANCELLED", sess.State)
	}
	if ev := cap.last(); ev.Reason != ReasonTimeout {
		t.Fatalf("reason: got %q, want %q", ev.Reason, ReasonTimeout)
	}
	if sess.Generation != gen+1 {
		t.Fatal("timeout cancel must bump generation")
	}
}

func comboSession(t *testing.T, st *Store) *Session {
	t.Helper()
	sess, err := st.Create(1, 20, CreateConfig{
		MaxDuration: 10 * time.Second,
		Recovery:    400 * time.Millisecond,
		Combo:       &ComboConfig{TotalSteps: 3},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	st.Transition(sess.ID, StateActive, ReasonCastComplete)
	st.ExtendComboWindow(sess.ID, 600*time.Millisecond)
	return sess
}

func TestComboAdvanceWithinWindow(t *testing.T) {
	st, clk, _ := newTestStore()
	sess := comboSession(t, st)

	clk.advance(300 * time.Millisecond)
	step, err := st.AdvanceCombo(sess.ID)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if step != 2 || sess.Combo.CurrentStep != 2 || sess.Combo.StepToken != 2 {
		t.Fatalf("step=%d combo=%+v", step, sess.Combo)
	}
	if !sess.Combo.WindowExpiresAt.IsZero() {
		t.Fatal("advance must clear the window until re-extended")
	}
}

func TestComboWindowBoundaryIsExclusive(t *testing.T) {
	st, clk, _ := newTestStore()
	sess := comboSession(t, st)

	clk.advance(600 * time.Millisecond) // exactly at expiry
	if _, err := st.AdvanceCombo(sess.ID); err != ErrComboWindowExpired {
		t.Fatalf("got %v, want ErrComboWindowExpired", err)
	}
}

func TestComboLateAndExhaustedReportsWindowExpired(t *testing.T) {
	st, clk, _ := newTestStore()
	sess := comboSession(t, st)

	for want := 2; want <= 3; want++ {
		clk.advance(100 * time.Millisecond)
		if _, err := st.AdvanceCombo(sess.ID); err != nil {
			t.Fatalf("advance to %d: %v", want, err)
		}
		st.ExtendComboWindow(sess.ID, 600*time.Millisecond)
	}

	// Both conditions hold: the chain is exhausted and the window has
	// lapsed. The lapsed window wins.
	clk.advance(700 * time.Millisecond)
	if _, err := st.AdvanceCombo(sess.ID); err != ErrComboWindowExpired {
		t.Fatalf("got %v, want ErrComboWindowExpired", err)
	}
}

func TestComboLapseMidChainEntersRecovery(t *testing.T) {
	st, clk, cap := newTestStore()
	sess := comboSession(t, st)

	clk.advance(600 * time.Millisecond)
	st.Tick()
	if sess.State != StateRecovery {
		t.Fatalf("state: got %v, want RECOVERY", sess.State)
	}
	if ev := cap.last(); ev.Reason != ReasonComboLapsed {
		t.Fatalf("reason: got %q, want %q", ev.Reason, ReasonComboLapsed)
	}

	// Recovery then completes normally.
	clk.advance(400 * time.Millisecond)
	st.Tick()
	if sess.State != StateCompleted {
		t.Fatalf("state: got %v, want COMPLETED", sess.State)
	}
}

func TestComboFinalStepCompletesAtWindowExpiry(t *testing.T) {
	st, clk, cap := newTestStore()
	sess := comboSession(t, st)

	for want := 2; want <= 3; want++ {
		clk.advance(100 * time.Millisecond)
		step, err := st.AdvanceCombo(sess.ID)
		if err != nil {
			t.Fatalf("advance to %d: %v", want, err)
		}
		if step != want {
			t.Fatalf("step: got %d, want %d", step, want)
		}
		st.ExtendComboWindow(sess.ID, 600*time.Millisecond)
	}

	// Past the final step there is nothing to advance to.
	if _, err := st.AdvanceCombo(sess.ID); err != ErrComboStepsExhausted {
		t.Fatalf("got %v, want ErrComboStepsExhausted", err)
	}

	clk.advance(600 * time.Millisecond)
	st.Tick()
	if sess.State != StateCompleted {
		t.Fatalf("state: got %v, want COMPLETED", sess.State)
	}
	if ev := cap.last(); ev.Reason != ReasonComboFinished {
		t.Fatalf("reason: got %q, want %q", ev.Reason, ReasonComboFinished)
	}
}

func TestScheduledEffectFiresOnce(t *testing.T) {
	st, clk, _ := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: 5 * time.Second})
	st.Transition(sess.ID, StateActive, ReasonCastComplete)

	fired := 0
	if !st.ScheduleEffect(sess.ID, 150*time.Millisecond, func() { fired++ }) {
		t.Fatal("schedule refused")
	}

	clk.advance(100 * time.Millisecond)
	st.Tick()
	if fired != 0 {
		t.Fatal("fired early")
	}

	clk.advance(50 * time.Millisecond)
	st.Tick()
	st.Tick()
	if fired != 1 {
		t.Fatalf("fired %d times, want 1", fired)
	}
}

func TestScheduledEffectDroppedAfterCancel(t *testing.T) {
	st, clk, _ := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: 5 * time.Second})
	st.Transition(sess.ID, StateActive, ReasonCastComplete)

	fired := false
	st.ScheduleEffect(sess.ID, 150*time.Millisecond, func() { fired = true })
	st.Cancel(sess.ID, "interrupted")

	clk.advance(200 * time.Millisecond)
	st.Tick()
	if fired {
		t.Fatal("effect fired for a cancelled session")
	}
}

func TestFlushRemovalsDropsTerminalSessions(t *testing.T) {
	st, _, _ := newTestStore()

	sess, _ := st.Create(1, 10, CreateConfig{MaxDuration: time.Second})
	st.Cancel(sess.ID, "interrupted")

	if st.Count() != 1 {
		t.Fatal("terminal session removed before cleanup phase")
	}
	st.FlushRemovals()
	if st.Count() != 0 {
		t.Fatal("terminal session survived cleanup")
	}
	// Actor is free to start a new session immediately after cancel.
	if _, err := st.Create(1, 11, CreateConfig{MaxDuration: time.Second}); err != nil {
		t.Fatalf("recreate: %v", err)
	}
}
