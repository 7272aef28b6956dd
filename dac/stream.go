package dac

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Sampler reads the register at audio rate. The square wave the tone engine
// draws comes out at whatever pitch its ticks run.
type Sampler struct {
	Reg  *Register
	Gain float32 // 0 means 0.5
}

// Process fills dst with interleaved stereo samples.
func (s *Sampler) Process(dst []float32) {
	gain := s.Gain
	if gain == 0 {
		gain = 0.5
	}
	v := s.Reg.Sample() * gain
	for i := range dst {
		dst[i] = v
	}
}

// StreamReader turns a Sampler into the little-endian float32 stereo
// stream ebiten expects.
type StreamReader struct {
	mu     sync.Mutex
	source *Sampler
	buf    []float32
}

func NewStreamReader(source *Sampler) *StreamReader {
	return &StreamReader{source: source}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i := 0; i < need; i++ {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(r.buf[i]))
	}
	return frames * 8, nil
}

func (r *StreamReader) Close() error { return nil }

// Player plays the register through the default audio device.
type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// NewPlayer opens the audio device and starts playing reg.
func NewPlayer(sampleRate int, reg *Register, gain float32) (*Player, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(&Sampler{Reg: reg, Gain: gain})
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	// keep latency close to the tick period
	pl.SetBufferSize(20 * time.Millisecond)
	pl.Play()
	return &Player{player: pl, reader: reader}, nil
}

func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

func (p *Player) Close() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
