package runtime

import "time"

// State represents application slot lifecycle states
type State string

const (
	StateUninstalled State = "uninstalled"
	StateInstalled   State = "installed"
	StateRunning     State = "running"
)

// Level maps the state onto the numeric gauge exported as a metric.
func (s State) Level() int {
	switch s {
	case StateInstalled:
		return 1
	case StateRunning:
		return 2
	default:
		return 0
	}
}

// Slot holds the single installed application. It carries no lock of its
// own; the Manager that owns it serializes access.
//
// handle != nil iff state is StateInstalled or StateRunning.
type Slot struct {
	code        []byte
	digest      string
	handle      Handle
	state       State
	installedAt time.Time
	startedAt   time.Time
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{state: StateUninstalled}
}

// SlotInfo is a read-only copy of the slot for inspection.
type SlotInfo struct {
	State       State
	Digest      string
	Size        int
	InstalledAt time.Time
	StartedAt   time.Time
	HasHandle   bool
}

func (s *Slot) info() SlotInfo {
	return SlotInfo{
		State:       s.state,
		Digest:      s.digest,
		Size:        len(s.code),
		InstalledAt: s.installedAt,
		StartedAt:   s.startedAt,
		HasHandle:   s.handle != nil,
	}
}

// replace swaps in new code and handle, returning the previous handle so the
// caller can release it. A nil handle leaves the slot uninstalled.
func (s *Slot) replace(code []byte, digest string, handle Handle, now time.Time) Handle {
	prev := s.handle

	s.code = code
	s.digest = digest
	s.handle = handle
	s.startedAt = time.Time{}
	if handle != nil {
		s.state = StateInstalled
		s.installedAt = now
	} else {
		s.state = StateUninstalled
		s.installedAt = time.Time{}
	}

	return prev
}

func (s *Slot) markRunning(now time.Time) {
	s.state = StateRunning
	s.startedAt = now
}
