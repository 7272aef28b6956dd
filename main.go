package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"go-conductor/bus"
	"go-conductor/config"
	"go-conductor/dac"
	"go-conductor/debug"
	"go-conductor/melody"
	"go-conductor/midi"
	"go-conductor/node"
	"go-conductor/policy"
	"go-conductor/sched"
	"go-conductor/sequencer"
	"go-conductor/tap"
	"go-conductor/theme"
	"go-conductor/tone"
	"go-conductor/tui"
	"go-conductor/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "config file (default ~/.config/go-conductor/config.yaml)")
	role := flag.String("role", "", "conductor, musician or disconnected")
	busKind := flag.String("bus", "", "none, hub, serial or midi")
	serialPort := flag.String("serial", "", "serial device of the CAN adapter")
	midiIn := flag.String("midi-in", "", "MIDI input port for the bus")
	midiOut := flag.String("midi-out", "", "MIDI output port for the bus")
	httpAddr := flag.String("http", "", "serve the HTTP command surface on this address")
	record := flag.String("record", "", "write the output to this WAV file on exit")
	noAudio := flag.Bool("no-audio", false, "do not play through the sound card")
	palette := flag.String("palette", "", "GIMP palette file for the console")
	headless := flag.Bool("headless", false, "run without the console")
	debugLog := flag.Bool("debug", false, "write ~/.config/go-conductor/debug.log")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	// flags override the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "role":
			cfg.Role = *role
		case "bus":
			cfg.Bus.Kind = *busKind
		case "serial":
			cfg.Bus.SerialPort = *serialPort
		case "midi-in":
			cfg.Bus.MIDIIn = *midiIn
		case "midi-out":
			cfg.Bus.MIDIOut = *midiOut
		case "http":
			cfg.HTTP.Addr = *httpAddr
		case "record":
			cfg.Audio.RecordPath = *record
		case "no-audio":
			cfg.Audio.Playback = !*noAudio
		case "debug":
			cfg.Debug.Enabled = *debugLog
		}
	})
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Debug.Enabled {
		if cfg.Debug.Path != "" {
			err = debug.EnableFile(cfg.Debug.Path)
		} else {
			err = debug.Enable()
		}
		if err != nil {
			return fmt.Errorf("debug log: %w", err)
		}
		defer debug.Disable()
	}

	th := theme.New(nil)
	if *palette != "" {
		p, err := theme.LoadGPL(*palette)
		if err != nil {
			return err
		}
		th = theme.New(p)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	clock := sched.RealClock{}
	k := sched.NewKernel(clock)
	go k.Run(ctx)

	library := melody.NewLibrary()
	tables, err := cfg.MelodyTables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		library.Add(t)
	}

	reg := &dac.Register{}
	sink := dac.Tee{reg}
	var rec *dac.Recorder
	if cfg.Audio.RecordPath != "" {
		rec = dac.NewRecorder(clock, cfg.Audio.RecordLimit)
		sink = append(sink, rec)
	}

	engine := tone.New(k, sink)
	engine.SetTickWindow(cfg.Timing.TickWindow)
	engine.ChangeVolume(cfg.Defaults.Volume - policy.DefaultVolume)

	seq := sequencer.New(k, engine, library)
	seq.ChangeTempo(cfg.Defaults.Tempo)
	seq.ChangeKey(cfg.Defaults.Key)
	if !seq.SetMelody(cfg.Defaults.Melody) {
		return fmt.Errorf("unknown melody %q (have %s)", cfg.Defaults.Melody, strings.Join(library.Names(), ", "))
	}

	transport, err := openBus(ctx, k, cfg)
	if err != nil {
		return err
	}
	if transport != nil {
		defer transport.Close()
	}

	r, err := node.ParseRole(cfg.Role)
	if err != nil {
		return err
	}
	n := node.New(k, engine, seq, transport, r)

	est := tap.New(k, n)
	est.SetReporter(n.Report)

	if matches := controllerMatches(cfg); len(matches) > 0 {
		dm := midi.NewDeviceManager(matches)
		go dm.Run(ctx)
		go watchDevices(dm, est, n)
	}

	if cfg.Audio.Playback {
		player, err := dac.NewPlayer(cfg.Audio.SampleRate, reg, float32(cfg.Audio.Gain))
		if err != nil {
			n.Report(fmt.Sprintf("Audio unavailable: %v", err))
		} else {
			defer player.Close()
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.NewServer(n, seq, est)
		go func() {
			if err := srv.Run(ctx, cfg.HTTP.Addr); err != nil {
				n.Report(fmt.Sprintf("HTTP server stopped: %v", err))
			}
		}()
	}

	if *headless {
		fmt.Printf("go-conductor running as %s. Ctrl+C to exit.\n", n.Role())
		<-ctx.Done()
	} else {
		p := tea.NewProgram(tui.NewModel(n, seq, est, th), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return err
		}
	}

	seq.Stop()
	if rec != nil {
		if err := writeRecording(rec, cfg.Audio.RecordPath, cfg.Audio.SampleRate); err != nil {
			return err
		}
		fmt.Printf("Recorded %v to %s\n", rec.Duration().Round(time.Millisecond), cfg.Audio.RecordPath)
	}
	return nil
}

// openBus builds the configured transport. A hub bus also starts any local
// musicians the config asks for, each with its own silent engine.
func openBus(ctx context.Context, k *sched.Kernel, cfg *config.Config) (bus.Transport, error) {
	switch cfg.Bus.Kind {
	case config.BusSerial:
		return bus.OpenSerial(cfg.Bus.SerialPort, cfg.Bus.Baud)
	case config.BusMIDI:
		return midi.OpenSysEx(cfg.Bus.MIDIIn, cfg.Bus.MIDIOut)
	case config.BusHub:
		hub := bus.NewHub()
		for i := 0; i < cfg.Bus.Musicians; i++ {
			engine := tone.New(k, &dac.Register{})
			node.New(k, engine, sequencer.New(k, engine, nil), hub.Attach(), node.Musician)
		}
		go hub.Run(ctx)
		return hub.Attach(), nil
	}
	return nil, nil
}

func controllerMatches(cfg *config.Config) []midi.Match {
	var matches []midi.Match
	for _, c := range cfg.AutoConnectControllers() {
		matches = append(matches, midi.Match{
			Pattern: c.PortName,
			Type:    midi.ParseControllerType(string(c.Type)),
			Channel: c.Channel,
			Note:    c.Note,
			CC:      c.CC,
		})
	}
	return matches
}

// watchDevices feeds every connected tap controller to the estimator
func watchDevices(dm *midi.DeviceManager, est *tap.Estimator, n *node.Node) {
	for ev := range dm.Events() {
		switch ev.Type {
		case midi.DeviceConnected:
			n.Report(fmt.Sprintf("Controller connected: %s", ev.ID))
			go midi.Forward(ev.Controller,
				func() { est.Press() },
				func() { est.Release() })
		case midi.DeviceDisconnected:
			n.Report(fmt.Sprintf("Controller disconnected: %s", ev.ID))
		}
	}
}

func writeRecording(rec *dac.Recorder, path string, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := rec.WriteWAV(f, sampleRate); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
