// Package eventhub provides the AMQP connection scope for Event Hubs clients: one long-lived
// AMQP 1.0 connection per scope, with management, producer and consumer links multiplexed over it
// and claims-based security authorization kept fresh for every link.
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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/Azure/azure-event-hubs-amqp-go/auth"
)

const (
	// Version is the semantic version number
	Version = "1.0.0"

	rootUserAgent = "/golang-event-hubs-amqp"
)

type (
	// TransportType selects the transport the scope's connection is established over.
	TransportType string

	// Scope owns a single AMQP connection to one Event Hub and opens management, producer and
	// consumer links over it. A scope is bound to an endpoint, an entity and a token provider for
	// its whole lifetime; once closed it cannot be reused.
	Scope struct {
		endpoint      *url.URL
		entityPath    string
		id            string
		tokenProvider auth.TokenProvider
		transport     TransportType
		proxy         *url.URL

		conn  *connSlot
		links *activeLinks

		ctx    context.Context
		cancel context.CancelFunc

		closed    int32
		closeOnce sync.Once
	}

	// ScopeOption provides structure for configuring a new Scope
	ScopeOption func(s *Scope) error
)

const (
	// TransportTCP establishes the connection over TCP with TLS on port 5671.
	TransportTCP TransportType = "amqps"

	// TransportWebSocket tunnels the connection through a TLS WebSocket on port 443.
	TransportWebSocket TransportType = "wss"
)

// ScopeWithTransportType configures the scope to connect over the given transport
func ScopeWithTransportType(transport TransportType) ScopeOption {
	return func(s *Scope) error {
		s.transport = transport
		return nil
	}
}

// ScopeWithWebSocket configures the scope to tunnel the connection through a TLS WebSocket
func ScopeWithWebSocket() ScopeOption {
	return ScopeWithTransportType(TransportWebSocket)
}

// ScopeWithWebSocketProxy routes the WebSocket transport through the given proxy. Only valid
// together with ScopeWithWebSocket.
func ScopeWithWebSocketProxy(proxyURL *url.URL) ScopeOption {
	return func(s *Scope) error {
		s.proxy = proxyURL
		return nil
	}
}

// ScopeWithIdentifier overrides the generated scope identifier. The identifier becomes the AMQP
// container-id and the prefix of every link name.
func ScopeWithIdentifier(id string) ScopeOption {
	return func(s *Scope) error {
		if id == "" {
			return ArgumentError{Argument: "id", Reason: "must not be empty"}
		}
		s.id = id
		return nil
	}
}

// NewScope constructs a connection scope for the entity at the given endpoint, e.g.
// sb://mynamespace.servicebus.windows.net/. The default transport is TCP with TLS.
func NewScope(endpoint *url.URL, entityPath string, provider auth.TokenProvider, opts ...ScopeOption) (*Scope, error) {
	if endpoint == nil || endpoint.Host == "" {
		return nil, ArgumentError{Argument: "endpoint", Reason: "must carry a host"}
	}
	if entityPath == "" {
		return nil, ArgumentError{Argument: "entityPath", Reason: "must not be empty"}
	}
	if provider == nil {
		return nil, ArgumentError{Argument: "provider", Reason: "must not be nil"}
	}

	s := &Scope{
		endpoint:      endpoint,
		entityPath:    entityPath,
		tokenProvider: provider,
		transport:     TransportTCP,
		links:         newActiveLinks(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	switch s.transport {
	case TransportTCP, TransportWebSocket:
	default:
		return nil, ArgumentError{Argument: "transport", Reason: "unknown transport type " + string(s.transport)}
	}
	if s.proxy != nil && s.transport != TransportWebSocket {
		return nil, ArgumentError{Argument: "proxy", Reason: "a proxy requires the WebSocket transport"}
	}

	if s.id == "" {
		suffix, err := randomHex(4)
		if err != nil {
			return nil, err
		}
		s.id = fmt.Sprintf("%s-%s", entityPath, suffix)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.conn = newConnSlot(s.ctx, s.newConnection)
	return s, nil
}

// ID returns the scope identifier
func (s *Scope) ID() string {
	return s.id
}

// EntityPath returns the entity the scope is bound to
func (s *Scope) EntityPath() string {
	return s.entityPath
}

// IsClosed reports whether Close has been called
func (s *Scope) IsClosed() bool {
	return atomic.LoadInt32(&s.closed) == 1
}

// Close shuts the scope down: the connection is closed, which fans out closure to every tracked
// link, and in-flight token operations are cancelled. Close is idempotent.
func (s *Scope) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		_, span := s.startSpanFromContext(ctx, "eh.Scope.Close")
		defer span.End()

		err = s.conn.Close()
		s.cancel()
	})
	return err
}

// checkOpen guards every public operation against use after Close.
func (s *Scope) checkOpen() error {
	if s.IsClosed() {
		return ErrScopeClosed
	}
	return nil
}

// getEntityAudience is the URI CBS tokens are scoped to for the given entity address.
func (s *Scope) getEntityAudience(address string) string {
	return s.getAmqpsURI() + address
}

func (s *Scope) getAmqpsURI() string {
	return "amqps://" + s.endpoint.Host + "/"
}

// linkName builds the diagnostic name attached to every link the scope opens.
func linkName(scopeID, connID, sessionID, linkID string) string {
	return fmt.Sprintf("%s;%s:%s:%s", scopeID, connID, sessionID, linkID)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
