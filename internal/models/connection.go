package models

import "fmt"

// ConnectionState is the composed stream/lifecycle state of a telemetry session.
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateOpen
	StateClosedManual     // terminal for the connection, no retry
	StateClosedUnexpected // a reconnect is pending
	StateTerminated       // session torn down
)

var connectionStateNames = map[ConnectionState]string{
	StateIdle:             "IDLE",
	StateConnecting:       "CONNECTING",
	StateOpen:             "OPEN",
	StateClosedManual:     "CLOSED_MANUAL",
	StateClosedUnexpected: "CLOSED_UNEXPECTED",
	StateTerminated:       "TERMINATED",
}

func (s ConnectionState) String() string {
	if name, ok := connectionStateNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Live reports whether a transport exists or is being established.
func (s ConnectionState) Live() bool {
	return s == StateConnecting || s == StateOpen
}

// MarshalText makes the state readable in JSON payloads.
func (s ConnectionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *ConnectionState) UnmarshalText(b []byte) error {
	for k, name := range connectionStateNames {
		if name == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown connection state %q", b)
}

// ProcessActivity tells whether a program is running on the control unit.
type ProcessActivity int

const (
	ActivityUnknown ProcessActivity = iota
	ActivityActive
	ActivityInactive
)

func (a ProcessActivity) String() string {
	switch a {
	case ActivityActive:
		return "ACTIVE"
	case ActivityInactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

func (a ProcessActivity) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ProcessActivity) UnmarshalText(b []byte) error {
	switch string(b) {
	case "ACTIVE":
		*a = ActivityActive
	case "INACTIVE":
		*a = ActivityInactive
	default:
		*a = ActivityUnknown
	}
	return nil
}
