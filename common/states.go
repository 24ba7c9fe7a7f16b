package common

// State represents all possible states for a process in the distributed
// mutual exclusion protocol.
type State int

const (
	NoMX   State = iota // not interested in the critical section
	WantMX              // request in flight, collecting grants
	InMX                // holding the critical section
)

func (s State) String() string {
	switch s {
	case NoMX:
		return "NoMX"
	case WantMX:
		return "WantMX"
	case InMX:
		return "InMX"
	}
	return "Unknown"
}
