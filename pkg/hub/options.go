package hub

import "net/http"

const (
	// DefaultUserAgent is sent with every request unless overridden.
	DefaultUserAgent = "hubitat-exporter"
)

// Option provides optional parameters for the Client.
type Option func(*Client)

// WithCredentials sets the username and password posted to the hub login form. Without
// credentials the login form is posted empty, which is sufficient for hubs without hub
// security enabled.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.username = username
		c.password = password
	}
}

// WithMakerAPI configures the Maker API app id and access token used for the device list and
// device detail endpoints.
func WithMakerAPI(appID, accessToken string) Option {
	return func(c *Client) {
		c.apiID = appID
		c.apiToken = accessToken
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithInsecureTLS disables certificate verification for https hub addresses. Hubs serve a
// self-signed certificate.
func WithInsecureTLS(insecure bool) Option {
	return func(c *Client) {
		c.insecureTLS = insecure
	}
}

// WithTransport replaces the http.RoundTripper shared by the session and Maker API clients.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.transport = rt
	}
}
