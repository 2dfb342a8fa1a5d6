// Package hub talks to a Hubitat Elevation hub: the cookie authenticated web UI for the device
// inventory and the token authenticated Maker API for device state.
package hub

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

var (
	// ErrNoSession is returned by inventory requests when no login session is established.
	ErrNoSession = errors.New("no hub session")
	// ErrLoginRedirect indicates the hub answered with its login page instead of data.
	ErrLoginRedirect = errors.New("hub session expired")
	// ErrUnexpectedStatus is matched by every StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")
)

// loginPageHeader is only set by the hub when it serves the login page.
const loginPageHeader = "X-Frame-Options"

// StatusError describes a non-2xx response.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Code, e.Path)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

// Client fetches device data from one hub.
type Client struct {
	baseURL     *url.URL
	username    string
	password    string
	apiID       string
	apiToken    string
	userAgent   string
	insecureTLS bool
	transport   http.RoundTripper

	api *http.Client

	lock    sync.Mutex
	session *http.Client
}

// NewClient parses a user-provided hub address and builds a Client. A bare ip or host:port is
// accepted and `http` is assumed. Only the `http` and `https` schemes are supported and the
// address may not carry a path or query.
func NewClient(addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("hub address is required")
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("parsing hub address: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported URI scheme %q", u.Scheme)
	}
	if u.Path != "" && u.Path != "/" {
		return nil, fmt.Errorf("unsupported URI path %q", u.Path)
	}
	if u.RawQuery != "" {
		return nil, errors.New("URI query parameters are not supported")
	}
	u.Path = ""
	c := &Client{
		baseURL:   u,
		userAgent: DefaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	if c.password != "" && c.username == "" {
		return nil, errors.New("a hub password requires a username")
	}
	if c.transport == nil {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: c.insecureTLS} // #nosec G402 -- hubs use self-signed certs
		c.transport = t
	}
	c.api = &http.Client{Transport: c.transport}
	return c, nil
}

// Address returns the normalized hub base URL.
func (c *Client) Address() string {
	return c.baseURL.String()
}

// HasSession reports whether a login session is established.
func (c *Client) HasSession() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.session != nil
}

// Login posts the hub login form and keeps the resulting cookies as the session. Any failure
// clears the session.
func (c *Client) Login(ctx context.Context) error {
	ll := c.logCtx(ctx).With().Str("stage", "login").Logger()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		c.setSession(nil)
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	hc := &http.Client{Transport: c.transport, Jar: jar}

	var body io.Reader
	if c.username != "" {
		ll.Debug().Str("username", c.username).Msg("logging in with credentials")
		form := url.Values{}
		form.Set("username", c.username)
		form.Set("password", c.password)
		body = strings.NewReader(form.Encode())
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/login", nil, body)
	if err != nil {
		c.setSession(nil)
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := hc.Do(req)
	if err != nil {
		c.setSession(nil)
		return fmt.Errorf("posting login form: %w", err)
	}
	defer drain(resp)
	ll.Debug().Int("status", resp.StatusCode).Msg("login response")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.setSession(nil)
		return &StatusError{Code: resp.StatusCode, Path: "/login"}
	}
	c.setSession(hc)
	return nil
}

// Inventory fetches the hub wide device inventory using the login session. If the hub
// redirects to its login page, Inventory logs in again and retries once.
func (c *Client) Inventory(ctx context.Context) ([]InventoryRecord, error) {
	records, err := c.inventory(ctx)
	if !errors.Is(err, ErrLoginRedirect) {
		return records, err
	}
	c.logCtx(ctx).Warn().Msg("hub session expired, logging in again")
	if err := c.Login(ctx); err != nil {
		return nil, fmt.Errorf("renewing hub session: %w", err)
	}
	return c.inventory(ctx)
}

func (c *Client) inventory(ctx context.Context) ([]InventoryRecord, error) {
	c.lock.Lock()
	session := c.session
	c.lock.Unlock()
	if session == nil {
		return nil, ErrNoSession
	}
	resp, err := c.get(ctx, session, "/device/list/all/data", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching device inventory: %w", err)
	}
	defer drain(resp)
	if resp.Header.Get(loginPageHeader) != "" {
		return nil, ErrLoginRedirect
	}
	var records []InventoryRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding device inventory: %w", err)
	}
	return records, nil
}

// DeviceIDs lists the numeric ids of every device exposed through the Maker API. Entries with
// an id which is not an unsigned integer are dropped.
func (c *Client) DeviceIDs(ctx context.Context) ([]uint32, error) {
	var refs []DeviceRef
	if err := c.getJSON(ctx, c.api, c.apiPath("devices"), c.apiQuery(), &refs); err != nil {
		return nil, fmt.Errorf("fetching device list: %w", err)
	}
	ids := make([]uint32, 0, len(refs))
	for _, r := range refs {
		id, err := strconv.ParseUint(strings.TrimSpace(r.ID.String()), 10, 32)
		if err != nil {
			c.logCtx(ctx).Debug().Str("device_id", r.ID.String()).Msg("skipping non-numeric device id")
			continue
		}
		ids = append(ids, uint32(id))
	}
	return ids, nil
}

// DeviceDetail fetches the attributes of one device.
func (c *Client) DeviceDetail(ctx context.Context, id uint32) (DeviceDetail, error) {
	var d DeviceDetail
	p := c.apiPath("devices", strconv.FormatUint(uint64(id), 10))
	if err := c.getJSON(ctx, c.api, p, c.apiQuery(), &d); err != nil {
		return DeviceDetail{}, fmt.Errorf("fetching device %d: %w", id, err)
	}
	return d, nil
}

// DeviceDetails fetches every device in ids, in order and one at a time. The result always
// starts with an empty placeholder DeviceDetail. The first failure aborts the remaining
// fetches.
func (c *Client) DeviceDetails(ctx context.Context, ids []uint32) ([]DeviceDetail, error) {
	details := make([]DeviceDetail, 1, len(ids)+1)
	for _, id := range ids {
		d, err := c.DeviceDetail(ctx, id)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, nil
}

func (c *Client) setSession(hc *http.Client) {
	c.lock.Lock()
	c.session = hc
	c.lock.Unlock()
}

func (c *Client) apiPath(elem ...string) string {
	return "/" + strings.Join(append([]string{"apps", "api", c.apiID}, elem...), "/")
}

func (c *Client) apiQuery() url.Values {
	return url.Values{"access_token": []string{c.apiToken}}
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path
	u.RawQuery = query.Encode()
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request for %s: %w", path, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	return req, nil
}

// get issues a GET request and returns the response if the status is 2xx. The caller owns the
// response body.
func (c *Client) get(ctx context.Context, hc *http.Client, path string, query url.Values) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return nil, err
	}
	resp, err := hc.Do(req)
	if err != nil {
		// url.Error carries the full URL, including the access token.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return nil, fmt.Errorf("requesting %s: %w", path, err)
	}
	c.logCtx(ctx).Debug().Str("path", path).Int("status", resp.StatusCode).Msg("hub response")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		drain(resp)
		return nil, &StatusError{Code: resp.StatusCode, Path: path}
	}
	return resp, nil
}

func (c *Client) getJSON(ctx context.Context, hc *http.Client, path string, query url.Values, out any) error {
	resp, err := c.get(ctx, hc, path, query)
	if err != nil {
		return err
	}
	defer drain(resp)
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

func (c *Client) logCtx(ctx context.Context) *zerolog.Logger {
	ll := log.Ctx(ctx).With().
		Str("component", "hub").
		Str("hub", c.baseURL.Host).
		Logger()
	return &ll
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
