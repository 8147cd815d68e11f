package gasstation

import (
	"fmt"
)

// State is a step of the sponsorship lifecycle:
//
//	IDLE -> BUILDING -> SIGNED -> BROADCAST -> CONFIRMED
//
// Any step may move to FAILED. CONFIRMED and FAILED are terminal.
type State int

const (
	StateIdle State = iota
	StateBuilding
	StateSigned
	StateBroadcast
	StateConfirmed
	StateFailed
)

var stateNames = [...]string{
	StateIdle:      "idle",
	StateBuilding:  "building",
	StateSigned:    "signed",
	StateBroadcast: "broadcast",
	StateConfirmed: "confirmed",
	StateFailed:    "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for i, name := range stateNames {
		if name == string(text) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown sponsorship state %q", text)
}
