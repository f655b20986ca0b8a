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
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopClose(context.Context) error {
	return nil
}

func TestActiveLinksAddRejectsDuplicateKey(t *testing.T) {
	links := newActiveLinks()

	require.NoError(t, links.add("key1", "myhub/Partitions/0", &trackedLink{close: noopClose}))
	err := links.add("key1", "myhub/Partitions/0", &trackedLink{close: noopClose})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "could not create link")
	assert.Equal(t, 1, links.len())
}

func TestActiveLinksRemoveReturnsEntryOnce(t *testing.T) {
	links := newActiveLinks()
	tl := &trackedLink{close: noopClose}
	require.NoError(t, links.add("key1", "myhub/Partitions/0", tl))

	removed := links.remove("key1")
	require.NotNil(t, removed)
	assert.Same(t, tl, removed)

	assert.Nil(t, links.remove("key1"))
	assert.Zero(t, links.len())
}

func TestActiveLinksCloseAllClosesEveryLink(t *testing.T) {
	links := newActiveLinks()

	var closed int32
	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key%d", i)
		require.NoError(t, links.add(key, "myhub/Partitions/0", &trackedLink{
			close: func(context.Context) error {
				atomic.AddInt32(&closed, 1)
				links.remove(key)
				return nil
			},
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	links.closeAll(ctx)

	assert.EqualValues(t, 5, atomic.LoadInt32(&closed))
	assert.Zero(t, links.len())
}

func TestRefreshInterval(t *testing.T) {
	cases := []struct {
		name     string
		until    time.Duration
		expected time.Duration
	}{
		{"longLivedToken", 10 * time.Minute, 15 * time.Minute},
		{"shortLivedToken", 30 * time.Second, 5*time.Minute + 30*time.Second},
		{"expiredToken", -10 * time.Minute, minimumAuthorizationRefresh},
		{"nearFloor", -2 * time.Minute, minimumAuthorizationRefresh},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			interval := refreshInterval(time.Now().Add(tc.until))
			assert.InDelta(t, tc.expected.Seconds(), interval.Seconds(), 1.0)
		})
	}
}

func TestRefresherReschedulesAfterSuccess(t *testing.T) {
	var calls int32
	r := newRefresher(context.Background(), "amqps://ns.servicebus.windows.net/myhub", func(context.Context) (time.Time, error) {
		atomic.AddInt32(&calls, 1)
		return time.Now().Add(time.Hour), nil
	})
	defer r.stop()

	r.refresh()

	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
	r.mu.Lock()
	assert.NotNil(t, r.timer, "a successful refresh should arm the next one")
	r.mu.Unlock()
}

func TestRefresherDisarmsOnFailure(t *testing.T) {
	r := newRefresher(context.Background(), "amqps://ns.servicebus.windows.net/myhub", func(context.Context) (time.Time, error) {
		return time.Time{}, fmt.Errorf("token fetch failed")
	})
	defer r.stop()

	r.refresh()

	r.mu.Lock()
	assert.Nil(t, r.timer, "a failed refresh must not reschedule")
	r.mu.Unlock()
}

func TestRefresherDisarmsOnPastExpiry(t *testing.T) {
	r := newRefresher(context.Background(), "amqps://ns.servicebus.windows.net/myhub", func(context.Context) (time.Time, error) {
		return time.Now().Add(-time.Minute), nil
	})
	defer r.stop()

	r.refresh()

	r.mu.Lock()
	assert.Nil(t, r.timer, "an already expired token must not reschedule")
	r.mu.Unlock()
}

func TestRefresherStoppedIsInert(t *testing.T) {
	var calls int32
	r := newRefresher(context.Background(), "amqps://ns.servicebus.windows.net/myhub", func(context.Context) (time.Time, error) {
		atomic.AddInt32(&calls, 1)
		return time.Now().Add(time.Hour), nil
	})

	r.stop()
	r.stop() // idempotent

	r.schedule(time.Now().Add(time.Hour))
	r.mu.Lock()
	assert.Nil(t, r.timer, "schedule after stop must not arm a timer")
	r.mu.Unlock()

	r.refresh()
	assert.Zero(t, atomic.LoadInt32(&calls), "refresh after stop must not negotiate")
}

func TestRefresherStopRacesWithRefresh(t *testing.T) {
	r := newRefresher(context.Background(), "amqps://ns.servicebus.windows.net/myhub", func(context.Context) (time.Time, error) {
		return time.Now().Add(time.Hour), nil
	})

	r.schedule(time.Now().Add(-time.Hour)) // fires at the floor; stop long before that
	done := make(chan struct{})
	go func() {
		r.stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stop did not return")
	}
}
