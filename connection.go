package eventhub

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"runtime"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/devigned/tab"
	"github.com/google/uuid"
	"golang.org/x/net/proxy"
	"golang.org/x/net/websocket"

	"github.com/Azure/azure-event-hubs-amqp-go/rpc"
)

const (
	defaultAMQPSPort     = "5671"
	webSocketPort        = "443"
	webSocketPath        = "/$servicebus/websocket/"
	webSocketSubProtocol = "amqp"

	defaultIdleTimeout = 60 * time.Second
	maxSessions        = 65535

	cbsAddress = "$cbs"
)

type (
	// activeConnection is one open AMQP connection together with its CBS link and the transport
	// watcher that reports the connection faulting.
	activeConnection struct {
		id     string
		client *amqp.Client
		cbs    *rpc.Link

		done      chan struct{}
		faultOnce sync.Once
		closeOnce sync.Once
		closeErr  error
	}

	// connWatcher wraps the transport so that the first read or write failure, or an explicit
	// close, fires the registered callback exactly once. go-amqp exposes no close notification of
	// its own, so the transport is the place connection termination becomes observable.
	connWatcher struct {
		net.Conn
		once    sync.Once
		onClose func()
	}
)

func (w *connWatcher) Read(b []byte) (int, error) {
	n, err := w.Conn.Read(b)
	if err != nil {
		w.fire()
	}
	return n, err
}

func (w *connWatcher) Write(b []byte) (int, error) {
	n, err := w.Conn.Write(b)
	if err != nil {
		w.fire()
	}
	return n, err
}

func (w *connWatcher) Close() error {
	err := w.Conn.Close()
	w.fire()
	return err
}

func (w *connWatcher) fire() {
	w.once.Do(func() {
		if w.onClose != nil {
			w.onClose()
		}
	})
}

// faulted reports whether the connection's transport has terminated.
func (c *activeConnection) faulted() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *activeConnection) markFaulted() {
	c.faultOnce.Do(func() {
		close(c.done)
	})
}

// Close shuts the AMQP connection down. Closing the client tears the transport down, which in
// turn fires the watcher and fans link closure out through the registry.
func (c *activeConnection) Close() error {
	c.closeOnce.Do(func() {
		if c.client != nil {
			c.closeErr = c.client.Close()
		}
		c.markFaulted()
	})
	return c.closeErr
}

// newConnection dials the configured transport, negotiates SASL ANONYMOUS and AMQP 1.0, and
// attaches the CBS link before handing the connection out. Any partial construction is torn down
// on failure.
func (s *Scope) newConnection(ctx context.Context) (*activeConnection, error) {
	ctx, span := s.startSpanFromContext(ctx, "eh.Scope.newConnection")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ac := &activeConnection{
		id:   uuid.New().String(),
		done: make(chan struct{}),
	}

	raw, err := s.dialTransport(ctx)
	if err != nil {
		tab.For(ctx).Error(err)
		return nil, err
	}

	watched := &connWatcher{
		Conn: raw,
		onClose: func() {
			ac.markFaulted()
			go func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), registryCloseTimeout)
				defer cancel()
				s.links.closeAll(closeCtx)
			}()
		},
	}

	client, err := amqp.New(watched, s.connOptions(ctx)...)
	if err != nil {
		tab.For(ctx).Error(err)
		_ = watched.Close()
		return nil, err
	}

	cbs, err := rpc.NewLink(client, cbsAddress)
	if err != nil {
		tab.For(ctx).Error(err)
		_ = client.Close()
		return nil, err
	}

	ac.client = client
	ac.cbs = cbs
	return ac, nil
}

func (s *Scope) connOptions(ctx context.Context) []amqp.ConnOption {
	opts := []amqp.ConnOption{
		amqp.ConnSASLAnonymous(),
		amqp.ConnContainerID(s.id),
		amqp.ConnServerHostname(s.endpoint.Hostname()),
		amqp.ConnIdleTimeout(defaultIdleTimeout),
		amqp.ConnMaxSessions(maxSessions),
		amqp.ConnProperty("product", "MSGolangClient"),
		amqp.ConnProperty("version", Version),
		amqp.ConnProperty("platform", runtime.GOOS),
		amqp.ConnProperty("framework", runtime.Version()),
		amqp.ConnProperty("user-agent", rootUserAgent),
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			opts = append(opts, amqp.ConnConnectTimeout(remaining))
		}
	}
	return opts
}

func (s *Scope) dialTransport(ctx context.Context) (net.Conn, error) {
	switch s.transport {
	case TransportTCP:
		return s.dialTLS(ctx)
	case TransportWebSocket:
		return s.dialWebSocket(ctx)
	default:
		return nil, ArgumentError{Argument: "transport", Reason: "unknown transport type " + string(s.transport)}
	}
}

func (s *Scope) dialTLS(ctx context.Context) (net.Conn, error) {
	host := s.endpoint.Hostname()
	port := s.endpoint.Port()
	if port == "" {
		port = defaultAMQPSPort
	}

	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(raw, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (s *Scope) dialWebSocket(ctx context.Context) (net.Conn, error) {
	host := s.endpoint.Hostname()

	config, err := newWebSocketConfig(host)
	if err != nil {
		return nil, err
	}

	dialer, err := proxyDialer(s.proxy)
	if err != nil {
		return nil, err
	}

	raw, err := dialContext(ctx, dialer, "tcp", net.JoinHostPort(host, webSocketPort))
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(raw, &tls.Config{ServerName: host})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	wsConn, err := websocket.NewClient(config, tlsConn)
	if err != nil {
		_ = tlsConn.Close()
		return nil, err
	}
	wsConn.PayloadType = websocket.BinaryFrame
	return wsConn, nil
}

func newWebSocketConfig(host string) (*websocket.Config, error) {
	config, err := websocket.NewConfig(webSocketURL(host), "http://localhost/")
	if err != nil {
		return nil, err
	}
	config.Protocol = []string{webSocketSubProtocol}
	return config, nil
}

func webSocketURL(host string) string {
	return "wss://" + host + webSocketPath
}

// proxyDialer resolves the dialer for the optional WebSocket proxy. Proxy schemes are those
// registered with golang.org/x/net/proxy (socks5 out of the box).
func proxyDialer(proxyURL *url.URL) (proxy.Dialer, error) {
	if proxyURL == nil {
		return proxy.Direct, nil
	}
	return proxy.FromURL(proxyURL, proxy.Direct)
}

func dialContext(ctx context.Context, dialer proxy.Dialer, network, address string) (net.Conn, error) {
	if cd, ok := dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}
	return dialer.Dial(network, address)
}
