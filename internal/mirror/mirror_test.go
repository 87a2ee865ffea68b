package mirror

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/skill"
)

type capture struct {
	confirmed []uint64
	rejected  []string
	ended     []skill.Event
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		PredictionConfirmed: func(id uint64) { c.confirmed = append(c.confirmed, id) },
		PredictionRejected:  func(reason string) { c.rejected = append(c.rejected, reason) },
		SessionEnded:        func(ev skill.Event) { c.ended = append(c.ended, ev) },
	}
}

func newTestReplica(start time.Time) (*Replica, *capture, *time.Time) {
	cap := &capture{}
	now := start
	r := NewReplica(7, cap.callbacks(), zap.NewNop())
	r.SetNow(func() time.Time { return now })
	return r, cap, &now
}

func castingEvent(at time.Time) skill.Event {
	return skill.Event{
		SessionID:      11,
		SkillID:        1,
		ActorID:        7,
		State:          "CASTING",
		StateEnteredAt: at.UnixMilli(),
		ServerTime:     at.UnixMilli(),
	}
}

func comboEvent(at time.Time, step int, windowMs int64) skill.Event {
	ev := skill.Event{
		SessionID:      12,
		SkillID:        2,
		ActorID:        7,
		State:          "ACTIVE",
		StateEnteredAt: at.UnixMilli(),
		ServerTime:     at.UnixMilli(),
		Combo: &skill.ComboSnapshot{
			CurrentStep: step,
			TotalSteps:  3,
			StepToken:   uint64(step),
		},
	}
	if windowMs > 0 {
		ev.Combo.WindowOpensAt = at.UnixMilli()
		ev.Combo.WindowExpiresAt = at.UnixMilli() + windowMs
	}
	return ev
}

func TestPredictStartRefusedWhileBusy(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, _ := newTestReplica(start)

	localID, ok := r.PredictStart(1, "a1")
	if !ok || localID == 0 {
		t.Fatalf("first prediction: got id=%d ok=%v", localID, ok)
	}
	if p := r.Pending(); p == nil || !p.IsPredicted || p.LocalSessionID != localID {
		t.Fatalf("pending record not a predicted local session: %+v", p)
	}
	if _, ok := r.PredictStart(1, "a2"); ok {
		t.Fatal("second prediction accepted while one is pending")
	}

	r.Reset()
	r.OnAuthoritativeEvent(castingEvent(start))
	if _, ok := r.PredictStart(2, "a3"); ok {
		t.Fatal("prediction accepted while a session is live")
	}
}

func TestPredictionConfirmedByMatchingSnapshot(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.PredictStart(1, "a1")
	r.OnAuthoritativeEvent(castingEvent(start))

	if r.Pending() != nil {
		t.Fatal("prediction still pending after matching snapshot")
	}
	if len(cap.confirmed) != 1 || cap.confirmed[0] != 11 {
		t.Fatalf("confirmed: got %v, want [11]", cap.confirmed)
	}
	if r.Live() == nil || r.Live().SessionID != 11 {
		t.Fatal("snapshot not adopted as live")
	}
}

func TestPredictionRejectedByResult(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.PredictStart(1, "a1")

	// Stale verdict for a different attempt is dropped silently.
	r.OnRejected(skill.UseSkillResult{RejectReason: "on_cooldown", ClientAttemptID: "old"})
	if r.Pending() == nil {
		t.Fatal("prediction cleared by a stale verdict")
	}

	r.OnRejected(skill.UseSkillResult{RejectReason: "on_cooldown", ClientAttemptID: "a1"})
	if r.Pending() != nil {
		t.Fatal("prediction not cleared by matching verdict")
	}
	if len(cap.rejected) != 1 || cap.rejected[0] != "on_cooldown" {
		t.Fatalf("rejected: got %v, want [on_cooldown]", cap.rejected)
	}
}

func TestPredictionRejectedByCancelledSnapshot(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.PredictStart(1, "a1")
	ev := castingEvent(start)
	ev.State = "CANCELLED"
	ev.Reason = "rejected"
	r.OnAuthoritativeEvent(ev)

	if r.Pending() != nil {
		t.Fatal("prediction survived cancellation")
	}
	if len(cap.rejected) != 1 || cap.rejected[0] != "rejected" {
		t.Fatalf("rejected: got %v", cap.rejected)
	}
	if r.Live() != nil {
		t.Fatal("cancelled snapshot adopted as live")
	}
	if len(cap.ended) != 1 {
		t.Fatalf("ended: got %d events, want 1", len(cap.ended))
	}
}

// The transport broadcasts every actor's snapshots to every client. Another
// actor casting the same skill must neither settle the local prediction nor
// occupy the live slot.
func TestForeignActorSnapshotDoesNotConfirmPrediction(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.PredictStart(1, "a1")

	foreign := castingEvent(start)
	foreign.SessionID = 500
	foreign.ActorID = 99
	r.OnAuthoritativeEvent(foreign)

	if len(cap.confirmed) != 0 {
		t.Fatalf("prediction confirmed by a foreign actor's session: %v", cap.confirmed)
	}
	if r.Pending() == nil {
		t.Fatal("prediction settled by a foreign actor's snapshot")
	}
	if r.Live() != nil {
		t.Fatal("foreign snapshot adopted as local live session")
	}

	// The owning actor's snapshot still confirms as usual.
	r.OnAuthoritativeEvent(castingEvent(start))
	if len(cap.confirmed) != 1 || cap.confirmed[0] != 11 {
		t.Fatalf("confirmed: got %v, want [11]", cap.confirmed)
	}
}

func TestForeignActorCancelDoesNotRejectPrediction(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.PredictStart(1, "a1")

	foreign := castingEvent(start)
	foreign.SessionID = 500
	foreign.ActorID = 99
	foreign.State = "CANCELLED"
	foreign.Reason = "staggered"
	r.OnAuthoritativeEvent(foreign)

	if len(cap.rejected) != 0 {
		t.Fatalf("prediction rejected by a foreign actor's cancellation: %v", cap.rejected)
	}
	if r.Pending() == nil {
		t.Fatal("prediction settled by a foreign actor's cancellation")
	}
	if len(cap.ended) != 0 {
		t.Fatalf("foreign terminal event reported locally: %d", len(cap.ended))
	}
}

func TestForeignLiveSessionDoesNotBlockPredictStart(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, _ := newTestReplica(start)

	foreign := comboEvent(start, 1, 600)
	foreign.SessionID = 500
	foreign.ActorID = 99
	r.OnAuthoritativeEvent(foreign)

	if r.Live() != nil {
		t.Fatal("foreign snapshot occupies the live slot")
	}
	if _, ok := r.PredictStart(2, "a1"); !ok {
		t.Fatal("prediction refused because of a foreign actor's live session")
	}
}

func TestSnapshotReplacesNotMerges(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, _ := newTestReplica(start)

	first := comboEvent(start, 1, 600)
	r.OnAuthoritativeEvent(first)

	// The second snapshot omits the window. After adoption no trace of the
	// first snapshot's window may remain.
	second := comboEvent(start.Add(200*time.Millisecond), 2, 0)
	r.OnAuthoritativeEvent(second)

	live := r.Live()
	if live == nil || live.Combo == nil {
		t.Fatal("no live combo snapshot")
	}
	if live.Combo.CurrentStep != 2 {
		t.Fatalf("step: got %d, want 2", live.Combo.CurrentStep)
	}
	if live.Combo.WindowExpiresAt != 0 {
		t.Fatalf("stale window carried over: %d", live.Combo.WindowExpiresAt)
	}
}

func TestPredictNextStepBoundedByWindow(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, now := newTestReplica(start)

	r.OnAuthoritativeEvent(comboEvent(start, 1, 600))

	*now = start.Add(300 * time.Millisecond)
	step, ok := r.PredictNextStep("a1")
	if !ok || step != 2 {
		t.Fatalf("got step=%d ok=%v, want 2 true", step, ok)
	}

	// Second prediction while one is pending is refused.
	if _, ok := r.PredictNextStep("a2"); ok {
		t.Fatal("prediction accepted while one is pending")
	}

	// Window boundary is exclusive, same as the server side.
	r.Reset()
	r.OnAuthoritativeEvent(comboEvent(start, 1, 600))
	*now = start.Add(600 * time.Millisecond)
	if _, ok := r.PredictNextStep("a3"); ok {
		t.Fatal("prediction accepted at window expiry instant")
	}
}

func TestPredictNextStepBoundedBySteps(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, _ := newTestReplica(start)

	r.OnAuthoritativeEvent(comboEvent(start, 3, 600))
	if _, ok := r.PredictNextStep("a1"); ok {
		t.Fatal("prediction accepted past the final step")
	}
}

func TestTerminalSnapshotEndsSession(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, cap, _ := newTestReplica(start)

	r.OnAuthoritativeEvent(castingEvent(start))
	done := castingEvent(start.Add(time.Second))
	done.State = "COMPLETED"
	done.Reason = "recovery_ended"
	r.OnAuthoritativeEvent(done)

	if r.Live() != nil {
		t.Fatal("live snapshot survived terminal event")
	}
	if len(cap.ended) != 1 || cap.ended[0].Reason != "recovery_ended" {
		t.Fatalf("ended: got %+v", cap.ended)
	}
}

// TestReplayMatchesAuthoritativeStore feeds a real store-generated event
// sequence through a fresh replica and checks the replica converges on the
// same end state: mid-stream snapshots match the store's own, and the
// terminal event leaves no live session on either side. A second actor runs
// a session of the same skill in parallel; its events reach the replica too,
// the way the broadcast transport delivers them, and must leave no trace.
func TestReplayMatchesAuthoritativeStore(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	now := start
	var events []skill.Event
	store := skill.NewStore(30*time.Second, func(ev skill.Event) { events = append(events, ev) }, zap.NewNop())
	store.SetNow(func() time.Time { return now })

	other, err := store.Create(8, 2, skill.CreateConfig{
		MaxDuration: 10 * time.Second,
		Recovery:    400 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("create foreign: %v", err)
	}
	store.Transition(other.ID, skill.StateActive, skill.ReasonCastComplete)

	sess, err := store.Create(7, 2, skill.CreateConfig{
		MaxDuration: 10 * time.Second,
		Recovery:    400 * time.Millisecond,
		Combo:       &skill.ComboConfig{TotalSteps: 3},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	store.Transition(sess.ID, skill.StateActive, skill.ReasonCastComplete)
	store.ExtendComboWindow(sess.ID, 600*time.Millisecond)
	store.EmitSnapshot(sess.ID)

	store.Cancel(other.ID, "staggered")

	now = now.Add(300 * time.Millisecond)
	if _, err := store.AdvanceCombo(sess.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	store.ExtendComboWindow(sess.ID, 600*time.Millisecond)
	store.EmitSnapshot(sess.ID)

	// Window lapses mid-chain: RECOVERY, then COMPLETED.
	now = now.Add(600 * time.Millisecond)
	store.Tick()
	now = now.Add(400 * time.Millisecond)
	store.Tick()

	r, cap, _ := newTestReplica(start)
	for _, ev := range events {
		r.OnAuthoritativeEvent(ev)
		if ev.ActorID != r.ActorID() || ev.Terminal() {
			continue
		}
		live := r.Live()
		if live == nil {
			t.Fatalf("no live snapshot after %s", ev.State)
		}
		authoritative, ok := store.Snapshot(ev.SessionID)
		if ok && live.Combo != nil && authoritative.Combo != nil &&
			ev.Combo.StepToken == authoritative.Combo.StepToken &&
			live.Combo.CurrentStep != authoritative.Combo.CurrentStep {
			t.Fatalf("replica step %d diverged from store step %d",
				live.Combo.CurrentStep, authoritative.Combo.CurrentStep)
		}
	}

	if r.Live() != nil {
		t.Fatal("replica holds a live session after terminal replay")
	}
	if store.LiveByActor(7) != nil {
		t.Fatal("store holds a live session after completion")
	}
	if len(cap.ended) != 1 || cap.ended[0].SessionID != sess.ID {
		t.Fatalf("ended callbacks: got %+v, want one for session %d", cap.ended, sess.ID)
	}
}

func TestResetDropsEverything(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	r, _, _ := newTestReplica(start)

	r.OnAuthoritativeEvent(comboEvent(start, 1, 600))
	r.PredictNextStep("a1")
	r.Reset()

	if r.Live() != nil || r.Pending() != nil {
		t.Fatal("state survived Reset")
	}
	if _, ok := r.PredictStart(1, "a2"); !ok {
		t.Fatal("prediction refused after Reset")
	}
}
