package tui

import (
	"github.com/charmbracelet/bubbles/key"

	"go-conductor/widgets"
)

func binding(help string, keys ...string) key.Binding {
	return key.NewBinding(key.WithKeys(keys...), key.WithHelp(keys[0], help))
}

type keyMap struct {
	VolumeUp   key.Binding
	VolumeDown key.Binding
	Mute       key.Binding
	Tempo      key.Binding
	Key        key.Binding
	Play       key.Binding
	Stop       key.Binding
	Conductor  key.Binding
	Musician   key.Binding
	Digit      key.Binding
	Clear      key.Binding
	Tap        key.Binding
	Melody     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		VolumeUp:   binding("volume up", "w"),
		VolumeDown: binding("volume down", "s"),
		Mute:       binding("mute", "m"),
		Tempo:      binding("set tempo", "t"),
		Key:        binding("set key", "k"),
		Play:       binding("play", "v"),
		Stop:       binding("stop", "x"),
		Conductor:  binding("conductor", "e"),
		Musician:   binding("musician", "d"),
		Digit: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9", "-"),
			key.WithHelp("0-9 -", "enter value"),
		),
		Clear:  binding("clear value", "backspace"),
		Tap:    key.NewBinding(key.WithKeys(" ", "space"), key.WithHelp("space", "tap button down/up")),
		Melody: binding("next melody", "n"),
		Help:   binding("more keys", "?"),
		Quit:   binding("quit", "q", "ctrl+c"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.VolumeUp, k.VolumeDown, k.Play, k.Stop, k.Tap, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.VolumeUp, k.VolumeDown, k.Mute},
		{k.Digit, k.Clear, k.Tempo, k.Key},
		{k.Play, k.Stop, k.Melody, k.Tap},
		{k.Conductor, k.Musician, k.Help, k.Quit},
	}
}

func (k keyMap) sections() []widgets.KeySection {
	return []widgets.KeySection{
		widgets.Section("Sound", k.VolumeUp, k.VolumeDown, k.Mute),
		widgets.Section("Values", k.Digit, k.Clear, k.Tempo, k.Key),
		widgets.Section("Music", k.Play, k.Stop, k.Melody, k.Tap),
		widgets.Section("Node", k.Conductor, k.Musician, k.Help, k.Quit),
	}
}
