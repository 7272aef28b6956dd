package dac

import (
	"io"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"go-conductor/policy"
	"go-conductor/sched"
)

type edge struct {
	at    time.Duration // since the first write
	level uint8
}

// Recorder remembers every register write with its time so the output can
// be rendered to audio afterwards at any sample rate.
type Recorder struct {
	clock sched.Clock
	limit time.Duration // stop recording past this, 0 = unlimited

	mu    sync.Mutex
	start time.Time
	edges []edge
}

// NewRecorder records writes timed by clock for at most limit.
func NewRecorder(clock sched.Clock, limit time.Duration) *Recorder {
	return &Recorder{clock: clock, limit: limit}
}

func (r *Recorder) SetLevel(level uint8) {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.start.IsZero() {
		r.start = now
	}
	at := now.Sub(r.start)
	if r.limit > 0 && at > r.limit {
		return
	}
	r.edges = append(r.edges, edge{at, level})
}

// Duration is the time between the first and last recorded write.
func (r *Recorder) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.edges) == 0 {
		return 0
	}
	return r.edges[len(r.edges)-1].at
}

// Streamer renders the recording as mono audio at sampleRate.
func (r *Recorder) Streamer(sampleRate beep.SampleRate) beep.Streamer {
	r.mu.Lock()
	edges := append([]edge(nil), r.edges...)
	r.mu.Unlock()

	total := 0
	if len(edges) > 0 {
		total = sampleRate.N(edges[len(edges)-1].at) + 1
	}
	pos, next := 0, 0
	var level uint8

	return beep.StreamerFunc(func(samples [][2]float64) (n int, ok bool) {
		if pos >= total {
			return 0, false
		}
		for i := range samples {
			if pos >= total {
				return i, true
			}
			at := sampleRate.D(pos)
			for next < len(edges) && edges[next].at <= at {
				level = edges[next].level
				next++
			}
			v := float64(level) / policy.MaxVolume
			samples[i][0], samples[i][1] = v, v
			pos++
		}
		return len(samples), true
	})
}

// WriteWAV renders the recording to w as 16-bit mono.
func (r *Recorder) WriteWAV(w io.WriteSeeker, sampleRate int) error {
	sr := beep.SampleRate(sampleRate)
	return wav.Encode(w, r.Streamer(sr), beep.Format{
		SampleRate:  sr,
		NumChannels: 1,
		Precision:   2,
	})
}
