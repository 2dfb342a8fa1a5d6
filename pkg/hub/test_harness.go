package hub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	testSessionCookie = "HUBSESSION"
	testLoginPage     = "<html><body><form action=\"/login\"></form></body></html>"
)

// TestHub mocks the subset of a Hubitat hub used by the exporter: the login form, the device
// inventory and the Maker API device endpoints.
type TestHub struct {
	s *httptest.Server
	t *testing.T

	// APIID and Token are the Maker API credentials the hub accepts.
	APIID string
	Token string

	lock            sync.Mutex
	username        string
	password        string
	session         string
	sessions        int
	logins          int
	inventory       json.RawMessage
	inventoryStatus int
	deviceList      json.RawMessage
	deviceListCode  int
	details         map[string]testResponse
	requests        []string
}

type testResponse struct {
	body       json.RawMessage
	statusCode int
}

// NewTestHub starts a mock hub which is shut down when the test completes.
func NewTestHub(t *testing.T) *TestHub {
	if !testing.Testing() {
		panic("NewTestHub is only for use in `go test`.")
	}
	h := &TestHub{
		t:          t,
		APIID:      "7",
		Token:      "test-token",
		inventory:  json.RawMessage(`[]`),
		deviceList: json.RawMessage(`[]`),
		details:    make(map[string]testResponse),
	}
	h.s = httptest.NewServer(h)
	t.Cleanup(h.Shutdown)
	return h
}

// URL returns the base address of the hub.
func (h *TestHub) URL() string {
	return h.s.URL
}

// Client builds a Client for this hub configured with the Maker API credentials.
func (h *TestHub) Client(opts ...Option) (*Client, error) {
	return NewClient(h.URL(), append([]Option{WithMakerAPI(h.APIID, h.Token)}, opts...)...)
}

// RequireCredentials makes the login form reject any other username and password.
func (h *TestHub) RequireCredentials(username, password string) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.username, h.password = username, password
	return h
}

// SetInventory sets the body returned by the device inventory.
func (h *TestHub) SetInventory(body json.RawMessage) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.inventory, h.inventoryStatus = body, 0
	return h
}

// SetInventoryError makes the device inventory fail with statusCode.
func (h *TestHub) SetInventoryError(statusCode int) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.inventoryStatus = statusCode
	return h
}

// ExpireSession invalidates the current login session; the next inventory request is answered
// with the login page.
func (h *TestHub) ExpireSession() *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.session = ""
	return h
}

// SetDeviceList sets the body returned by the Maker API device list.
func (h *TestHub) SetDeviceList(body json.RawMessage) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.deviceList, h.deviceListCode = body, 0
	return h
}

// SetDeviceListError makes the Maker API device list fail with statusCode.
func (h *TestHub) SetDeviceListError(statusCode int) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.deviceListCode = statusCode
	return h
}

// AddDevice mocks the Maker API detail response of device id.
func (h *TestHub) AddDevice(id string, body json.RawMessage) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.details[id] = testResponse{body: body}
	return h
}

// AddDeviceError makes the Maker API detail request of device id fail with statusCode.
func (h *TestHub) AddDeviceError(id string, statusCode int) *TestHub {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.details[id] = testResponse{statusCode: statusCode}
	return h
}

// Logins returns the number of successful logins.
func (h *TestHub) Logins() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return h.logins
}

// Requests returns the paths requested so far, in order.
func (h *TestHub) Requests() []string {
	h.lock.Lock()
	defer h.lock.Unlock()
	return append([]string(nil), h.requests...)
}

// ServeHTTP implements http.Handler.
func (h *TestHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.requests = append(h.requests, r.URL.Path)

	switch {
	case r.URL.Path == "/login":
		h.serveLogin(w, r)
	case r.URL.Path == "/device/list/all/data":
		h.serveInventory(w, r)
	case strings.HasPrefix(r.URL.Path, "/apps/api/"):
		h.serveMakerAPI(w, r)
	default:
		h.t.Errorf("unexpected request to test hub: %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func (h *TestHub) serveLogin(w http.ResponseWriter, r *http.Request) {
	assert.Equal(h.t, http.MethodPost, r.Method)
	if h.username != "" {
		if err := r.ParseForm(); err != nil ||
			r.PostForm.Get("username") != h.username ||
			r.PostForm.Get("password") != h.password {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
	}
	h.sessions++
	h.logins++
	h.session = fmt.Sprintf("session-%d", h.sessions)
	http.SetCookie(w, &http.Cookie{Name: testSessionCookie, Value: h.session, Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (h *TestHub) serveInventory(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(testSessionCookie)
	if err != nil || h.session == "" || c.Value != h.session {
		w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(testLoginPage))
		return
	}
	if h.inventoryStatus != 0 {
		http.Error(w, "inventory unavailable", h.inventoryStatus)
		return
	}
	writeJSON(w, h.inventory)
}

func (h *TestHub) serveMakerAPI(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("access_token") != h.Token {
		http.Error(w, "invalid access token", http.StatusUnauthorized)
		return
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/apps/api/"+h.APIID+"/devices")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if rest == "" {
		if h.deviceListCode != 0 {
			http.Error(w, "device list unavailable", h.deviceListCode)
			return
		}
		writeJSON(w, h.deviceList)
		return
	}
	resp, ok := h.details[strings.TrimPrefix(rest, "/")]
	if !ok {
		h.t.Errorf("unexpected device detail request: %s", r.URL.Path)
		http.NotFound(w, r)
		return
	}
	if resp.statusCode != 0 {
		http.Error(w, "device unavailable", resp.statusCode)
		return
	}
	writeJSON(w, resp.body)
}

func writeJSON(w http.ResponseWriter, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

// Shutdown closes network servers associated with the test.
func (h *TestHub) Shutdown() {
	h.s.Close()
}
