package node

import (
	"fmt"
	"strings"
)

// Role decides which commands a node applies: a Conductor applies and
// broadcasts local commands, a Musician applies what it hears on the bus.
type Role int

const (
	Disconnected Role = iota
	Conductor
	Musician
)

func (r Role) String() string {
	switch r {
	case Conductor:
		return "conductor"
	case Musician:
		return "musician"
	}
	return "disconnected"
}

// ParseRole accepts the names String returns.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conductor":
		return Conductor, nil
	case "musician":
		return Musician, nil
	case "", "disconnected":
		return Disconnected, nil
	}
	return Disconnected, fmt.Errorf("unknown role %q", s)
}

// MarshalText lets roles appear by name in YAML and JSON.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Role) UnmarshalText(b []byte) error {
	v, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}
