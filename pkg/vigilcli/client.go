// Package vigilcli is the client library for the vigil daemon. It speaks
// JSON-RPC 2.0 over HTTP on the daemon's Unix socket (TCP fallback) and can
// attach a WebSocket observer for push notifications.
package vigilcli

import (
	"context"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/jhttp"
)

const rpcCallTimeout = 30 * time.Second

// Client is a connection to the vigil daemon.
type Client struct {
	rpc    *jrpc2.Client
	ch     *jhttp.Channel
	http   *http.Client
	wsURL  string
	secret string
}

// authTransport injects the Bearer auth header on every request.
type authTransport struct {
	secret string
	base   http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.secret)
	return t.base.RoundTrip(clone)
}

// NewClient connects to the daemon, preferring the Unix socket and falling
// back to TCP when the socket is absent.
func NewClient() (*Client, error) {
	secret, err := loadSecret()
	if err != nil {
		return nil, err
	}

	path := socketPath()
	if _, statErr := os.Stat(path); statErr == nil {
		httpClient := &http.Client{
			Transport: &authTransport{
				secret: secret,
				base: &http.Transport{
					DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
						var d net.Dialer
						return d.DialContext(ctx, "unix", path)
					},
				},
			},
		}
		// The host is a placeholder; the transport always dials the socket.
		return newClient("http://vigil/jsonrpc", "ws://vigil/jsonrpc/ws", httpClient, secret), nil
	}

	addr := tcpAddress()
	httpClient := &http.Client{
		Transport: &authTransport{secret: secret, base: http.DefaultTransport},
	}
	return newClient("http://"+addr+"/jsonrpc", "ws://"+addr+"/jsonrpc/ws", httpClient, secret), nil
}

// newClient wires the jrpc2 client over an HTTP channel. Split from
// NewClient so tests can point it at an httptest server.
func newClient(url, wsURL string, httpClient *http.Client, secret string) *Client {
	ch := jhttp.NewChannel(url, &jhttp.ChannelOptions{Client: httpClient})
	return &Client{
		rpc:    jrpc2.NewClient(ch, nil),
		ch:     ch,
		http:   httpClient,
		wsURL:  wsURL,
		secret: secret,
	}
}

// call performs a JSON-RPC request and decodes the result into out.
func (c *Client) call(method string, params, out any) error {
	ctx, cancel := context.WithTimeout(context.Background(), rpcCallTimeout)
	defer cancel()
	return c.rpc.CallResult(ctx, method, params, out)
}

// Close releases the client's connections.
func (c *Client) Close() error {
	c.rpc.Close()
	return c.ch.Close()
}
