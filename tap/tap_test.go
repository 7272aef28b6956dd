package tap

import (
	"testing"
	"time"

	"go-conductor/policy"
	"go-conductor/sched"
)

type fakeTempo struct {
	applied []int
}

func (f *fakeTempo) ApplyTappedTempo(bpm int) bool {
	f.applied = append(f.applied, bpm)
	return policy.Tempo(bpm, true)
}

type rig struct {
	hold  time.Duration // how long click keeps the button down
	k     *sched.Kernel
	est   *Estimator
	tempo *fakeTempo
	lines []string
}

func newRig() *rig {
	r := &rig{
		hold:  150 * time.Millisecond,
		k:     sched.NewKernel(sched.NewManualClock(time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC))),
		tempo: &fakeTempo{},
	}
	r.est = New(r.k, r.tempo)
	r.est.SetReporter(func(s string) { r.lines = append(r.lines, s) })
	return r
}

// click presses, holds for r.hold and releases, then waits rest.
func (r *rig) click(rest time.Duration) Outcome {
	r.est.Press()
	r.k.Advance(r.hold)
	out := r.est.Release()
	r.k.Advance(rest)
	return out
}

// taps releases the button at the given spacings after an arming tap.
func (r *rig) taps(intervals ...int) []Outcome {
	outs := []Outcome{r.click(0)}
	for _, ms := range intervals {
		r.k.Advance(time.Duration(ms)*time.Millisecond - r.hold)
		outs = append(outs, r.click(0))
	}
	return outs
}

func TestSteadyTapsSetTempo(t *testing.T) {
	r := newRig()
	outs := r.taps(500, 500, 500)
	want := []Outcome{Armed, Sampled, Sampled, TempoSet}
	for i := range want {
		if outs[i] != want[i] {
			t.Fatalf("outcomes = %v, want %v", outs, want)
		}
	}
	if len(r.tempo.applied) != 1 || r.tempo.applied[0] != 120 {
		t.Fatalf("applied %v, want [120]", r.tempo.applied)
	}
	if s := r.est.Snapshot(); s.Armed || len(s.Samples) != 0 {
		t.Fatalf("burst not cleared after use: %+v", s)
	}
}

func TestIntegerAverage(t *testing.T) {
	r := newRig()
	r.taps(400, 450, 480)
	// avg = 1330/3 = 443, bpm = 60000/443 = 135
	if len(r.tempo.applied) != 1 || r.tempo.applied[0] != 135 {
		t.Fatalf("applied %v, want [135]", r.tempo.applied)
	}
}

func TestIncompatibleIntervalDropsBurst(t *testing.T) {
	r := newRig()
	outs := r.taps(500, 500, 900)
	if outs[3] != Incompatible {
		t.Fatalf("third interval outcome = %v, want Incompatible", outs[3])
	}
	if len(r.tempo.applied) != 0 {
		t.Fatalf("tempo applied %v after incompatible burst", r.tempo.applied)
	}

	// next release starts a new session
	r.k.Advance(350 * time.Millisecond)
	if out := r.click(0); out != Armed {
		t.Fatalf("tap after incompatible burst = %v, want Armed", out)
	}
}

func TestToleranceBoundary(t *testing.T) {
	r := newRig()
	r.taps(500, 600, 400)
	if len(r.tempo.applied) != 1 || r.tempo.applied[0] != 120 {
		t.Fatalf("applied %v, want [120]", r.tempo.applied)
	}
}

func TestSessionTimeoutRearms(t *testing.T) {
	r := newRig()
	r.taps(500)
	r.k.Advance(3 * time.Second)
	if out := r.click(0); out != Armed {
		t.Fatalf("tap after a long pause = %v, want Armed", out)
	}
	if s := r.est.Snapshot(); len(s.Samples) != 0 {
		t.Fatalf("samples %v survived the timeout", s.Samples)
	}
}

func TestHoldTwoSecondsResetsTempo(t *testing.T) {
	r := newRig()
	r.est.Press()
	r.k.Advance(2000 * time.Millisecond)
	if s := r.est.Snapshot(); s.State != Held {
		t.Fatalf("state after 2s = %v, want held", s.State)
	}
	if out := r.est.Release(); out != HoldReset {
		t.Fatalf("release after 2s = %v, want HoldReset", out)
	}
	if len(r.tempo.applied) != 1 || r.tempo.applied[0] != policy.DefaultBPM {
		t.Fatalf("applied %v, want [%d]", r.tempo.applied, policy.DefaultBPM)
	}
}

func TestHoldShortDoesNotReset(t *testing.T) {
	r := newRig()
	r.taps(500) // a sample in the buffer
	r.k.Advance(500 * time.Millisecond)
	r.est.Press()
	r.k.Advance(1500 * time.Millisecond)
	if out := r.est.Release(); out != HoldCleared {
		t.Fatalf("release after 1.5s = %v, want HoldCleared", out)
	}
	if len(r.tempo.applied) != 0 {
		t.Fatalf("tempo applied %v on a short hold", r.tempo.applied)
	}
	if s := r.est.Snapshot(); s.Armed || len(s.Samples) != 0 {
		t.Fatalf("burst not cleared by hold: %+v", s)
	}
}

func TestReleaseBeforeHoldArmIsATap(t *testing.T) {
	r := newRig()
	r.est.Press()
	r.k.Advance(900 * time.Millisecond)
	if out := r.est.Release(); out != Armed {
		t.Fatalf("release at 900ms = %v, want Armed", out)
	}
	r.k.Advance(2 * time.Second)
	if s := r.est.Snapshot(); s.State != Released {
		t.Fatalf("hold timer fired after release: state %v", s.State)
	}
}

func TestContactBounce(t *testing.T) {
	r := newRig()
	if out := r.est.Press(); out != Down {
		t.Fatalf("first press = %v, want Down", out)
	}
	r.k.Advance(30 * time.Millisecond)
	if out := r.est.Release(); out != Ignored {
		t.Fatalf("release 30ms after press = %v, want Ignored", out)
	}
	r.k.Advance(20 * time.Millisecond)
	if out := r.est.Press(); out != Ignored {
		t.Fatalf("press 50ms after press = %v, want Ignored", out)
	}

	// the bounced release did not cancel the hold timer
	r.k.Advance(time.Second)
	if s := r.est.Snapshot(); s.State != Held {
		t.Fatalf("state = %v, want held", s.State)
	}
}

func TestRelaxedRangeRefusal(t *testing.T) {
	r := newRig()
	r.hold = 105 * time.Millisecond
	// 210ms taps = 285 bpm, above the normal range
	outs := r.taps(210, 210, 210)
	if outs[3] != TempoSet || r.tempo.applied[0] != 285 {
		t.Fatalf("outcome %v applied %v, want TempoSet [285]", outs[3], r.tempo.applied)
	}

	r.k.Advance(3 * time.Second)
	outs = r.taps(2000, 2000, 2000) // 30 bpm, below the relaxed range
	if outs[3] != TempoRefused {
		t.Fatalf("outcome %v, want TempoRefused", outs)
	}
}

// A press seen while a slow handler holds the dispatcher is stamped with the
// clock, so the hold timer counts from the real press.
func TestPressDuringSlowHandler(t *testing.T) {
	clock := sched.NewManualClock(time.Date(2024, 4, 22, 0, 0, 0, 0, time.UTC))
	k := sched.NewKernel(clock)
	est := New(k, &fakeTempo{})

	var busy sched.Object
	var out Outcome
	k.Async(&busy, func() {
		clock.Add(300 * time.Millisecond)
		out = est.Press()
	})
	k.Advance(0)
	if out != Down {
		t.Fatalf("press = %v, want down", out)
	}

	k.Advance(950 * time.Millisecond)
	if s := est.Snapshot().State; s != Pressed {
		t.Fatalf("state 950ms after the press = %v, want pressed", s)
	}
	k.Advance(100 * time.Millisecond)
	if s := est.Snapshot().State; s != Held {
		t.Fatalf("state 1050ms after the press = %v, want held", s)
	}
}
