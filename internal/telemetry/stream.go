package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"kiln_console/internal/models"
)

const (
	handshakeTimeout = 10 * time.Second
	closeWriteWait   = time.Second
	maxStreamMsgSize = 1 << 16 // 64 KB; one row is under 100 bytes
)

// Conn is one established stream transport. Close must unblock a pending
// ReadMessage.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// Dialer opens stream transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials the control unit's log stream with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
}

// NewWebSocketDialer returns a dialer with a bounded handshake.
func NewWebSocketDialer() WebSocketDialer {
	return WebSocketDialer{Dialer: &websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: handshakeTimeout,
	}}
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	conn.SetReadLimit(maxStreamMsgSize)
	return wsConn{Conn: conn}, nil
}

type wsConn struct {
	*websocket.Conn
}

// Close sends a normal-closure frame before dropping the socket.
func (c wsConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteWait))
	return c.Conn.Close()
}

// isExpectedClose reports transport errors that are a normal end of stream.
func isExpectedClose(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

// command is a side effect requested by a state transition and executed
// by the session loop.
type command interface{ isCommand() }

type cmdDial struct {
	gen uint64
	url string
}

type (
	cmdCloseTransport    struct{ gen uint64 }
	cmdScheduleReconnect struct{}
	cmdCancelReconnect   struct{}
	cmdFetchSnapshot     struct{ cycle uint64 }
	cmdCancelSnapshot    struct{}
)

func (cmdDial) isCommand()              {}
func (cmdCloseTransport) isCommand()    {}
func (cmdScheduleReconnect) isCommand() {}
func (cmdCancelReconnect) isCommand()   {}
func (cmdFetchSnapshot) isCommand()     {}
func (cmdCancelSnapshot) isCommand()    {}

// streamState is the Stream Client's owned state. Each transition takes the
// current value and returns the next one with the commands to run; nothing
// else writes it.
type streamState struct {
	conn   models.ConnectionState
	url    string
	gen    uint64 // generation of the current transport; events from older ones are stale
	manual bool   // close requested; no reconnect when the close event lands
}

// connect opens a transport unless one is already Connecting or Open and
// still wanted. A live transport with a requested close is stale, as is a
// leftover transport of an older generation: either is closed first and its
// close event, being of an old generation, cannot change the new state.
func (s streamState) connect(url string) (streamState, []command) {
	if s.conn == models.StateTerminated || (s.conn.Live() && !s.manual) {
		return s, nil
	}
	cmds := []command{cmdCancelReconnect{}}
	if s.gen != 0 {
		cmds = append(cmds, cmdCloseTransport{gen: s.gen})
	}
	s.gen++
	s.url = url
	s.manual = false
	s.conn = models.StateConnecting
	return s, append(cmds, cmdDial{gen: s.gen, url: url})
}

// close asks the transport to shut down. The manual marker is set before
// the close command so the resulting close event is always classified as
// manual. The state itself changes when the close event arrives.
func (s streamState) close(manual bool) (streamState, []command) {
	if manual {
		s.manual = true
	}
	if !s.conn.Live() {
		if manual && s.conn == models.StateClosedUnexpected {
			s.conn = models.StateClosedManual
			return s, []command{cmdCancelReconnect{}}
		}
		return s, nil
	}
	return s, []command{cmdCloseTransport{gen: s.gen}}
}

func (s streamState) opened(gen uint64) streamState {
	if gen != s.gen || s.conn != models.StateConnecting {
		return s
	}
	s.conn = models.StateOpen
	return s
}

// closed applies the authoritative close event of a transport.
func (s streamState) closed(gen uint64, activity models.ProcessActivity, mounted bool) (streamState, []command) {
	if gen != s.gen || !s.conn.Live() {
		return s, nil
	}
	if s.manual || activity == models.ActivityInactive {
		s.conn = models.StateClosedManual
		return s, nil
	}
	s.conn = models.StateClosedUnexpected
	if !mounted {
		return s, nil
	}
	return s, []command{cmdScheduleReconnect{}}
}

// terminate is the teardown transition; it is terminal.
func (s streamState) terminate() (streamState, []command) {
	var cmds []command
	if s.conn.Live() {
		cmds = append(cmds, cmdCloseTransport{gen: s.gen})
	}
	s.manual = true
	s.conn = models.StateTerminated
	return s, append(cmds, cmdCancelReconnect{})
}
