package testutil

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
)

// Call is one command received by a FakeBrowser.
type Call struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"sessionId,omitempty"`
	Method    string          `json:"method"`
	Params    json.RawMessage `json:"params,omitempty"`
}

// Handler answers a command. A non-nil error is sent back as a protocol error.
type Handler func(call Call) (interface{}, error)

// FakeBrowser is a scripted DevTools endpoint. It serves /json/version and a
// websocket that answers commands from registered handlers. Unhandled
// commands succeed with an empty result.
type FakeBrowser struct {
	server   *httptest.Server
	upgrader websocket.Upgrader

	mu       sync.Mutex
	handlers map[string]Handler
	calls    []Call
	conn     *websocket.Conn
	writeMu  sync.Mutex
}

// Fixed identifiers returned by the default handlers.
const (
	FakeContextID = "context-1"
	FakeTargetID  = "target-1"
	FakeSessionID = "session-1"
)

// NewFakeBrowser starts a fake endpoint closed when t finishes. Target
// creation, attachment and navigation are pre-scripted; Page.navigate and
// Page.reload fire Page.loadEventFired straight after answering.
func NewFakeBrowser(t testing.TB) *FakeBrowser {
	t.Helper()
	f := &FakeBrowser{handlers: make(map[string]Handler)}

	f.Handle("Target.createBrowserContext", func(Call) (interface{}, error) {
		return map[string]string{"browserContextId": FakeContextID}, nil
	})
	f.Handle("Target.createTarget", func(Call) (interface{}, error) {
		return map[string]string{"targetId": FakeTargetID}, nil
	})
	f.Handle("Target.attachToTarget", func(Call) (interface{}, error) {
		return map[string]string{"sessionId": FakeSessionID}, nil
	})
	loaded := func(c Call) (interface{}, error) {
		go f.Emit(c.SessionID, "Page.loadEventFired", map[string]float64{"timestamp": 1})
		return map[string]string{"frameId": "frame-1", "loaderId": "loader-1"}, nil
	}
	f.Handle("Page.navigate", loaded)
	f.Handle("Page.reload", loaded)

	mux := http.NewServeMux()
	mux.HandleFunc("/json/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"Browser":              "FakeChrome/1.0",
			"Protocol-Version":     "1.3",
			"webSocketDebuggerUrl": f.WebSocketURL(),
		})
	})
	mux.HandleFunc("/devtools/browser", f.serveWS)

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// Handle replaces the handler for a method.
func (f *FakeBrowser) Handle(method string, h Handler) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

// HostPort returns the address of the endpoint.
func (f *FakeBrowser) HostPort() (string, int) {
	host, port, _ := net.SplitHostPort(strings.TrimPrefix(f.server.URL, "http://"))
	p, _ := strconv.Atoi(port)
	return host, p
}

// Addr returns the endpoint as host:port.
func (f *FakeBrowser) Addr() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

// WebSocketURL returns the browser websocket URL.
func (f *FakeBrowser) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/devtools/browser"
}

// Calls returns the received commands, optionally filtered by method.
func (f *FakeBrowser) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Emit sends an event to the connected client.
func (f *FakeBrowser) Emit(sessionID, method string, params interface{}) error {
	data, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return f.write(map[string]interface{}{
		"method":    method,
		"params":    json.RawMessage(data),
		"sessionId": sessionID,
	})
}

// Disconnect drops the websocket connection.
func (f *FakeBrowser) Disconnect() {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

// Close disconnects the client and stops the server.
func (f *FakeBrowser) Close() {
	f.Disconnect()
	f.server.Close()
}

func (f *FakeBrowser) write(msg interface{}) error {
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no client connected")
	}

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (f *FakeBrowser) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	for {
		var call Call
		if err := conn.ReadJSON(&call); err != nil {
			return
		}

		f.mu.Lock()
		f.calls = append(f.calls, call)
		h := f.handlers[call.Method]
		f.mu.Unlock()

		var result interface{} = map[string]interface{}{}
		var herr error
		if h != nil {
			result, herr = h(call)
		}

		resp := map[string]interface{}{"id": call.ID}
		if call.SessionID != "" {
			resp["sessionId"] = call.SessionID
		}
		if herr != nil {
			resp["error"] = map[string]interface{}{"code": -32000, "message": herr.Error()}
		} else {
			if result == nil {
				result = map[string]interface{}{}
			}
			resp["result"] = result
		}
		if err := f.write(resp); err != nil {
			return
		}
	}
}
