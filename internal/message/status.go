package message

import "fmt"

// Status is the delivery state of a message. Values are ordered.
type Status int

const (
	StatusPending Status = iota
	StatusSent
	StatusDelivered
	StatusSeen
)

var statusNames = [...]string{"pending", "sent", "delivered", "seen"}

func (s Status) String() string {
	if s < StatusPending || s > StatusSeen {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// ParseStatus parses the wire name of a status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return StatusPending, fmt.Errorf("unknown status %q", name)
}

// CanAdvanceTo reports whether moving from s to next keeps the status monotonic.
// Staying in place is not an advance.
func (s Status) CanAdvanceTo(next Status) bool {
	return next > s && next <= StatusSeen
}

// MarshalText implements encoding.TextMarshaler.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
