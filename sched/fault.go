package sched

import (
	"fmt"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

// KindTimingFault tags errors raised for messages that started after their deadline.
const KindTimingFault ftag.Kind = "TIMING_FAULT"

// TimingFault describes a message that could not begin before its deadline.
type TimingFault struct {
	Baseline time.Time
	Deadline time.Time
	Started  time.Time
}

// Late is how far past the deadline the message started.
func (f *TimingFault) Late() time.Duration {
	return f.Started.Sub(f.Deadline)
}

func (f *TimingFault) Error() string {
	return fmt.Sprintf("deadline missed by %s (window %s)", f.Late(), f.Deadline.Sub(f.Baseline))
}

func newTimingFault(m *Msg, started time.Time) error {
	return fault.Wrap(&TimingFault{Baseline: m.baseline, Deadline: m.deadline, Started: started},
		ftag.With(KindTimingFault),
		fmsg.With("scheduled handler missed its deadline"),
	)
}
