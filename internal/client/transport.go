package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultTimeout bounds every call. A server that has not answered within
// this window is treated as unavailable for that call; the connection itself
// is left alone.
const DefaultTimeout = 10 * time.Second

var (
	ErrTimeout          = errors.New("request timed out")
	ErrConnectionClosed = errors.New("connection closed")
)

// APIError is an error response from the gateway, surfaced verbatim.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

type request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

type response struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
}

// Event is a server-pushed frame. Events carry no id, which is how the read
// loop tells them apart from responses.
type Event struct {
	Type      string          `json:"type"`
	TeamID    string          `json:"teamId"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Transport multiplexes correlated calls over one persistent websocket.
// Connecting is lazy: the first call dials, concurrent callers share the
// in-flight attempt, and a dead connection is only re-dialed by the next
// call. There is no implicit retry of a failed or timed-out call.
type Transport struct {
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer
	onEvent func(Event)

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting chan struct{}
	dialErr    error
	pending    map[string]chan response
	counter    uint64

	writeMu sync.Mutex
}

type Option func(*Transport)

// WithTimeout overrides the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(t *Transport) { t.timeout = d }
}

// WithEventHandler registers the sink for pushed event frames.
func WithEventHandler(fn func(Event)) Option {
	return func(t *Transport) { t.onEvent = fn }
}

func NewTransport(url string, opts ...Option) *Transport {
	t := &Transport{
		url:     url,
		timeout: DefaultTimeout,
		dialer:  websocket.DefaultDialer,
		pending: make(map[string]chan response),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// nextID builds a correlation id from a monotonic counter and a timestamp
// suffix, unique within and across connections.
func (t *Transport) nextID() string {
	t.mu.Lock()
	t.counter++
	n := t.counter
	t.mu.Unlock()
	return fmt.Sprintf("%d-%d", n, time.Now().UnixNano())
}

// ensureConn returns the live connection, dialing if needed. Concurrent
// callers during a dial wait for the one attempt instead of racing their
// own.
func (t *Transport) ensureConn() (*websocket.Conn, error) {
	for {
		t.mu.Lock()
		if t.conn != nil {
			conn := t.conn
			t.mu.Unlock()
			return conn, nil
		}
		if t.connecting != nil {
			wait := t.connecting
			t.mu.Unlock()
			<-wait
			t.mu.Lock()
			conn, err := t.conn, t.dialErr
			t.mu.Unlock()
			if conn != nil {
				return conn, nil
			}
			if err != nil {
				return nil, err
			}
			continue
		}
		done := make(chan struct{})
		t.connecting = done
		t.mu.Unlock()

		conn, err := t.dial()

		t.mu.Lock()
		t.connecting = nil
		t.dialErr = err
		if err == nil {
			t.conn = conn
			go t.readLoop(conn)
		}
		t.mu.Unlock()
		close(done)

		return conn, err
	}
}

func (t *Transport) dial() (*websocket.Conn, error) {
	conn, _, err := t.dialer.Dial(t.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.url, err)
	}
	return conn, nil
}

// Call sends one request and waits for its response. On timeout the pending
// entry is purged, so a response that arrives later is dropped instead of
// being delivered to the wrong caller.
func (t *Transport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	conn, err := t.ensureConn()
	if err != nil {
		return nil, err
	}

	id := t.nextID()
	ch := make(chan response, 1)
	t.mu.Lock()
	t.pending[id] = ch
	t.mu.Unlock()

	t.writeMu.Lock()
	err = conn.WriteJSON(request{ID: id, Method: method, Params: params})
	t.writeMu.Unlock()
	if err != nil {
		t.purge(id)
		t.dropConn(conn)
		return nil, fmt.Errorf("%w: %s", ErrConnectionClosed, err)
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrConnectionClosed
		}
		if resp.Status != "success" {
			return nil, &APIError{Code: resp.Code, Message: resp.Message}
		}
		return resp.Data, nil
	case <-timer.C:
		t.purge(id)
		return nil, fmt.Errorf("%s: %w", method, ErrTimeout)
	case <-ctx.Done():
		t.purge(id)
		return nil, ctx.Err()
	}
}

func (t *Transport) purge(id string) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// readLoop owns the connection's read side, routing responses by id and
// handing id-less frames to the event handler.
func (t *Transport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.dropConn(conn)
			return
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			slog.Debug("dropping malformed frame", "error", err)
			continue
		}

		if resp.ID == "" {
			if t.onEvent != nil {
				var ev Event
				if err := json.Unmarshal(data, &ev); err == nil {
					t.onEvent(ev)
				}
			}
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- resp
		}
		// Unknown id: the caller already timed out, drop it.
	}
}

// dropConn tears down the current connection and fails every pending call.
// The next Call dials fresh. Teardown of a connection that has already been
// replaced only closes it: the pending table belongs to the new owner.
func (t *Transport) dropConn(conn *websocket.Conn) {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		conn.Close()
		return
	}
	t.conn = nil
	orphaned := t.pending
	t.pending = make(map[string]chan response)
	t.mu.Unlock()

	conn.Close()
	for _, ch := range orphaned {
		close(ch)
	}
}

// Close shuts the connection down; every pending call fails with
// ErrConnectionClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return nil
	}
	t.dropConn(conn)
	return nil
}
