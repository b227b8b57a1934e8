package session

import (
	"encoding/json"
	"errors"
	"fmt"
)

// State is the position of a session in the stamping workflow.
type State int

const (
	Idle State = iota
	TemplateLoaded
	OverlayLoaded
	RegionSelected
	PositionAdjusted
	Composed
)

var stateNames = [...]string{
	Idle:             "idle",
	TemplateLoaded:   "template_loaded",
	OverlayLoaded:    "overlay_loaded",
	RegionSelected:   "region_selected",
	PositionAdjusted: "position_adjusted",
	Composed:         "composed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

func (s State) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", name)
}

var (
	// ErrInvalidTransition rejects an operation the current state does not allow.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrMergeInProgress rejects a second merge, or any change, while a merge runs.
	ErrMergeInProgress = errors.New("merge already in progress")
	// ErrSessionClosed rejects work on a session that was deleted or expired.
	ErrSessionClosed = errors.New("session closed")
	// ErrWidthOutOfRange rejects a stamp width outside the size control range.
	ErrWidthOutOfRange = errors.New("stamp width out of range")
)
