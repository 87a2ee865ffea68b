package gate

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/skillcast/server/internal/data"
	"github.com/skillcast/server/internal/skill"
)

func testTable() *data.SkillTable {
	t := data.NewSkillTable()
	t.Add(&data.SkillInfo{
		SkillID:  1,
		Name:     "Jab",
		Cooldown: 2 * time.Second,
		Cancel: data.CancelPolicy{
			Interrupt: data.CooldownReduced,
			Timeout:   data.CooldownFull,
			Reject:    data.CooldownNone,
		},
	})
	t.Add(&data.SkillInfo{SkillID: 2, Name: "Freebie"}) // no cooldown
	return t
}

func newTestTracker(start time.Time) (*Tracker, *time.Time) {
	now := start
	tr := NewTracker(testTable(), 500*time.Millisecond, zap.NewNop())
	tr.SetNow(func() time.Time { return now })
	return tr, &now
}

func event(state, reason string, at time.Time) skill.Event {
	return skill.Event{
		SessionID:  1,
		SkillID:    1,
		ActorID:    7,
		State:      state,
		Reason:     reason,
		ServerTime: at.UnixMilli(),
	}
}

func TestGlobalCooldownFromCasting(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tr, now := newTestTracker(start)

	tr.OnSessionEvent(event("CASTING", "", start))

	if ok, reason := tr.CanStart(7, 2); ok || reason != "on_gcd" {
		t.Fatalf("got ok=%v reason=%q, want on_gcd", ok, reason)
	}
	// GCD expiry is exclusive: exactly at expiry is allowed.
	*now = start.Add(500 * time.Millisecond)
	if ok, _ := tr.CanStart(7, 2); !ok {
		t.Fatal("blocked at gcd expiry instant")
	}
}

func TestCooldownStartsOnCompleted(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tr, now := newTestTracker(start)

	tr.OnSessionEvent(event("COMPLETED", "recovery_ended", start))

	*now = start.Add(time.Second)
	if ok, reason := tr.CanStart(7, 1); ok || reason != "on_cooldown" {
		t.Fatalf("got ok=%v reason=%q, want on_cooldown", ok, reason)
	}
	if d := tr.CooldownRemaining(7, 1); d != time.Second {
		t.Fatalf("remaining: got %v, want 1s", d)
	}

	*now = start.Add(2 * time.Second)
	if ok, _ := tr.CanStart(7, 1); !ok {
		t.Fatal("blocked after full cooldown elapsed")
	}
}

func TestCancelledCooldownFollowsPolicy(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)

	cases := []struct {
		reason string
		want   time.Duration // 0 = no cooldown
	}{
		{skill.ReasonTimeout, 2 * time.Second}, // full
		{"interrupted", time.Second},           // reduced = half
		{"rejected", 0},                        // none
	}

	for _, tc := range cases {
		tr, _ := newTestTracker(start)
		tr.OnSessionEvent(event("CANCELLED", tc.reason, start))
		if d := tr.CooldownRemaining(7, 1); d != tc.want {
			t.Fatalf("%s: remaining got %v, want %v", tc.reason, d, tc.want)
		}
	}
}

func TestCooldownAnchorsOnEventServerTime(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tr, _ := newTestTracker(start)

	// Event carries a timestamp one second in the past (delayed dispatch).
	// The cooldown clock starts from the event time, not dispatch time.
	tr.OnSessionEvent(event("COMPLETED", "recovery_ended", start.Add(-time.Second)))
	if d := tr.CooldownRemaining(7, 1); d != time.Second {
		t.Fatalf("remaining: got %v, want 1s", d)
	}
}

func TestClearActorDropsTracking(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tr, _ := newTestTracker(start)

	tr.OnSessionEvent(event("CASTING", "", start))
	tr.OnSessionEvent(event("COMPLETED", "recovery_ended", start))
	tr.ClearActor(7)

	if ok, _ := tr.CanStart(7, 1); !ok {
		t.Fatal("still blocked after ClearActor")
	}
}

func TestSkillWithoutCooldownNeverBlocks(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	tr, _ := newTestTracker(start)

	ev := event("COMPLETED", "recovery_ended", start)
	ev.SkillID = 2
	tr.OnSessionEvent(ev)
	if d := tr.CooldownRemaining(7, 2); d != 0 {
		t.Fatalf("remaining: got %v, want 0", d)
	}
}
