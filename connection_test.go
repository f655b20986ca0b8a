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
	"net"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/proxy"
)

func TestWebSocketURL(t *testing.T) {
	assert.Equal(t, "wss://ns.servicebus.windows.net/$servicebus/websocket/", webSocketURL("ns.servicebus.windows.net"))
}

func TestNewWebSocketConfig(t *testing.T) {
	config, err := newWebSocketConfig("ns.servicebus.windows.net")
	require.NoError(t, err)
	assert.Equal(t, []string{webSocketSubProtocol}, config.Protocol)
	assert.Equal(t, "wss", config.Location.Scheme)
	assert.Equal(t, "ns.servicebus.windows.net", config.Location.Hostname())
}

func TestProxyDialerDefaultsToDirect(t *testing.T) {
	dialer, err := proxyDialer(nil)
	require.NoError(t, err)
	assert.Equal(t, proxy.Direct, dialer)
}

func TestProxyDialerFromSOCKSURL(t *testing.T) {
	proxyURL, err := url.Parse("socks5://127.0.0.1:1080")
	require.NoError(t, err)

	dialer, err := proxyDialer(proxyURL)
	require.NoError(t, err)
	assert.NotNil(t, dialer)
	assert.NotEqual(t, proxy.Direct, dialer)
}

func TestConnWatcherFiresOnceOnClose(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	var fired int32
	watched := &connWatcher{
		Conn:    client,
		onClose: func() { atomic.AddInt32(&fired, 1) },
	}

	require.NoError(t, watched.Close())
	_ = watched.Close()

	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestConnWatcherFiresOnReadFailure(t *testing.T) {
	client, server := net.Pipe()

	var fired int32
	watched := &connWatcher{
		Conn:    client,
		onClose: func() { atomic.AddInt32(&fired, 1) },
	}

	require.NoError(t, server.Close())

	buf := make([]byte, 8)
	_, err := watched.Read(buf)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))

	// A later explicit close must not fire again.
	_ = watched.Close()
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestConnWatcherFiresOnWriteFailure(t *testing.T) {
	client, server := net.Pipe()

	var fired int32
	watched := &connWatcher{
		Conn:    client,
		onClose: func() { atomic.AddInt32(&fired, 1) },
	}

	// Half-closed transport: the peer is gone but nothing has read-failed yet.
	require.NoError(t, server.Close())

	_, err := watched.Write([]byte("attn"))
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))

	_ = watched.Close()
	assert.EqualValues(t, 1, atomic.LoadInt32(&fired))
}

func TestActiveConnectionFaultTransitions(t *testing.T) {
	conn := newTestConnection()
	assert.False(t, conn.faulted())

	conn.markFaulted()
	assert.True(t, conn.faulted())
	conn.markFaulted() // idempotent
	assert.True(t, conn.faulted())
}

func TestActiveConnectionCloseMarksFaulted(t *testing.T) {
	conn := newTestConnection()
	require.NoError(t, conn.Close())
	assert.True(t, conn.faulted())
	require.NoError(t, conn.Close(), "closing twice is a no-op")
}
