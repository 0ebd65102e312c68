package genai

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

// Dialer opens the backend connection, possibly through a proxy.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

func init() {
	proxy.RegisterDialerType("http", newConnectDialer)
}

// NewDialer returns a dialer for proxyAddr, which may be an http, socks5 or
// socks URL. Empty means a direct connection.
func NewDialer(proxyAddr string) (Dialer, error) {
	var direct net.Dialer
	proxyAddr = strings.TrimSpace(proxyAddr)
	if proxyAddr == "" {
		return direct.DialContext, nil
	}

	u, err := url.Parse(proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("parse proxy address: %w", err)
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	dialer, err := proxy.FromURL(u, &direct)
	if err != nil {
		return nil, fmt.Errorf("build proxy dialer: %w", err)
	}
	if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
		return contextDialer.DialContext, nil
	}
	return func(_ context.Context, network, addr string) (net.Conn, error) {
		return dialer.Dial(network, addr)
	}, nil
}

// connectDialer tunnels through an HTTP proxy with CONNECT.
type connectDialer struct {
	proxyAddr string
	auth      string
	forward   proxy.Dialer
}

func newConnectDialer(u *url.URL, forward proxy.Dialer) (proxy.Dialer, error) {
	d := &connectDialer{proxyAddr: u.Host, forward: forward}
	if u.Port() == "" {
		d.proxyAddr = net.JoinHostPort(u.Hostname(), "80")
	}
	if u.User != nil {
		password, _ := u.User.Password()
		d.auth = base64.StdEncoding.EncodeToString([]byte(u.User.Username() + ":" + password))
	}
	return d, nil
}

func (d *connectDialer) Dial(network, addr string) (net.Conn, error) {
	return d.DialContext(context.Background(), network, addr)
}

func (d *connectDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	if cd, ok := d.forward.(proxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, network, d.proxyAddr)
	} else {
		conn, err = d.forward.Dial(network, d.proxyAddr)
	}
	if err != nil {
		return nil, fmt.Errorf("dial proxy: %w", err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: addr},
		Host:   addr,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", "Basic "+d.auth)
	}
	if err := req.Write(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("write connect request: %w", err)
	}

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connect response: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, fmt.Errorf("proxy connect to %s: %s", addr, resp.Status)
	}
	if reader.Buffered() > 0 {
		return &bufferedConn{Conn: conn, reader: reader}, nil
	}
	return conn, nil
}

type bufferedConn struct {
	net.Conn
	reader *bufio.Reader
}

func (c *bufferedConn) Read(p []byte) (int, error) {
	return c.reader.Read(p)
}
