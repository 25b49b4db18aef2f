package sections

import "encoding/json"

// Outcome reports why Run returned.
type Outcome int

const (
	// Stopped means the continuation asked to stop.
	Stopped Outcome = iota
	// Stalled means raw data kept arriving, or time kept passing, without
	// a point being decoded for longer than the parse timeout.
	Stalled
	// ReceiveFailed means the driver's Receive returned an error.
	ReceiveFailed
)

// OK reports whether Run stopped by choice rather than by failure.
func (o Outcome) OK() bool { return o == Stopped }

func (o Outcome) String() string {
	switch o {
	case Stopped:
		return "stopped"
	case Stalled:
		return "stalled"
	case ReceiveFailed:
		return "receive_failed"
	default:
		return "unknown"
	}
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}
