package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"go-conductor/bus"
	"go-conductor/config"
	"go-conductor/midi"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "send":
		err = send(os.Args[2:])
	case "monitor":
		err = monitor(os.Args[2:])
	case "buttons":
		err = buttons(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Bus test tool")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                                  - List MIDI and serial ports")
	fmt.Println("  send [port flags] ACTION [VALUE]      - Send one bus message")
	fmt.Println("  monitor [port flags]                  - Print every bus message")
	fmt.Println("  buttons -match NAME [-type pedal]     - Print tap button edges")
	fmt.Println("          [-save [-config FILE]]          and save the first one pressed")
	fmt.Println("")
	fmt.Println("Port flags: -serial DEV [-baud N] | -midi-in NAME -midi-out NAME")
	fmt.Println("Actions: StopMusic PlayMusic ChangeVolume ChangeTempo ChangeKey ToggleMute (or 0-6)")
}

func listPorts() {
	fmt.Println("=== MIDI Input Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct {
		ins  []drivers.In
		outs []drivers.Out
	}
	ch := make(chan result, 1)
	go func() {
		ch <- result{ins: gomidi.GetInPorts(), outs: gomidi.GetOutPorts()}
	}()

	select {
	case r := <-ch:
		for i, p := range r.ins {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
		fmt.Println("\n=== MIDI Output Ports ===")
		for i, p := range r.outs {
			fmt.Printf("  %d: %s\n", i, p.String())
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}

	fmt.Println("\n=== Serial Ports ===")
	ports, err := bus.SerialPorts()
	if err != nil {
		fmt.Printf("  error: %v\n", err)
		return
	}
	for i, p := range ports {
		fmt.Printf("  %d: %s\n", i, p)
	}
}

type portFlags struct {
	serial  string
	baud    int
	midiIn  string
	midiOut string
}

func (p *portFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.serial, "serial", "", "serial device of the CAN adapter")
	fs.IntVar(&p.baud, "baud", 115200, "serial baud rate")
	fs.StringVar(&p.midiIn, "midi-in", "", "MIDI input port for SysEx frames")
	fs.StringVar(&p.midiOut, "midi-out", "", "MIDI output port for SysEx frames")
}

func (p *portFlags) open() (bus.Transport, error) {
	switch {
	case p.serial != "":
		return bus.OpenSerial(p.serial, p.baud)
	case p.midiIn != "" && p.midiOut != "":
		return midi.OpenSysEx(p.midiIn, p.midiOut)
	}
	return nil, fmt.Errorf("need -serial, or -midi-in and -midi-out")
}

func send(args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	var pf portFlags
	pf.register(fs)
	fs.Parse(args)

	if fs.NArg() < 1 {
		return fmt.Errorf("send needs an action")
	}
	action, err := bus.ParseAction(fs.Arg(0))
	if err != nil {
		return err
	}
	m := bus.Message{Action: action}
	if fs.NArg() > 1 {
		if _, err := strconv.Atoi(fs.Arg(1)); err != nil {
			return fmt.Errorf("value %q is not an integer", fs.Arg(1))
		}
		m.Payload = fs.Arg(1)
	}

	t, err := pf.open()
	if err != nil {
		return err
	}
	defer t.Close()

	if err := t.Send(m); err != nil {
		return err
	}
	fmt.Printf("Sent %v\n", m)
	return nil
}

func monitor(args []string) error {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	var pf portFlags
	pf.register(fs)
	fs.Parse(args)

	t, err := pf.open()
	if err != nil {
		return err
	}
	defer t.Close()

	t.SetHandler(func(m bus.Message) {
		fmt.Printf("[%s] %v\n", time.Now().Format("15:04:05.000"), m)
	})

	fmt.Println("Monitoring. Ctrl+C to exit.")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-ctx.Done()
	return nil
}

func buttons(args []string) error {
	fs := flag.NewFlagSet("buttons", flag.ExitOnError)
	pattern := fs.String("match", "", "substring of the input port name")
	kind := fs.String("type", "button", "button or pedal")
	save := fs.Bool("save", false, "save the first button pressed as a tap controller")
	configPath := fs.String("config", "", "config file (default ~/.config/go-conductor/config.yaml)")
	fs.Parse(args)

	if *pattern == "" {
		return fmt.Errorf("buttons needs -match")
	}
	typ := midi.ParseControllerType(strings.ToLower(*kind))
	if typ == midi.ControllerUnknown {
		return fmt.Errorf("unknown controller type %q", *kind)
	}

	dm := midi.NewDeviceManager([]midi.Match{{Pattern: *pattern, Type: typ}})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go dm.Run(ctx)

	var learn sync.Once
	fmt.Println("Waiting for devices. Ctrl+C to exit.")
	for ev := range dm.Events() {
		if ev.Type == midi.DeviceDisconnected {
			fmt.Printf("-- %s disconnected\n", ev.ID)
			continue
		}
		fmt.Printf("-- %s connected (%v)\n", ev.ID, ev.Controller.Type())
		go func(c midi.Controller) {
			for b := range c.Buttons() {
				edge := "up"
				if b.Down {
					edge = "down"
				}
				fmt.Printf("[%s] %s ch%d #%d %s\n", time.Now().Format("15:04:05.000"), c.ID(), b.Channel, b.Number, edge)
				if *save && b.Down {
					learn.Do(func() {
						if err := saveController(*configPath, *pattern, c.Type(), b); err != nil {
							fmt.Printf("-- save failed: %v\n", err)
						}
					})
				}
			}
		}(ev.Controller)
	}
	return nil
}

// saveController stores the pressed button under the -match pattern, so the
// node's device manager finds the same port again.
func saveController(path, pattern string, typ midi.ControllerType, b midi.ButtonEvent) error {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}

	verb := "updated"
	if cfg.LearnController(pattern, config.ControllerType(typ.String()), int(b.Channel), int(b.Number)) {
		verb = "added"
	}
	if path != "" {
		err = cfg.SaveFile(path)
	} else {
		err = cfg.Save()
	}
	if err != nil {
		return err
	}
	fmt.Printf("-- %s %q: %s ch%d #%d\n", verb, pattern, typ, b.Channel, b.Number)
	return nil
}
