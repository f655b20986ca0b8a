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
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	// authorizationRefreshBuffer is added to the token expiry when computing the refresh delay.
	// The delay lands after the stated expiry; the floor below is what keeps short-lived tokens
	// refreshed in time. Kept as-is for parity with the service client this mirrors.
	authorizationRefreshBuffer = 5 * time.Minute

	// minimumAuthorizationRefresh is the floor for the delay between token refreshes.
	minimumAuthorizationRefresh = 4 * time.Minute

	// authorizationRefreshTimeout bounds a single background token refresh attempt.
	authorizationRefreshTimeout = 3 * time.Minute

	registryCloseTimeout = 30 * time.Second
)

type (
	// activeLinks tracks every open link in a scope together with its authorization refresher.
	// Mutations come from opener goroutines (insert) and from link close paths and the connection
	// watcher (remove), so all operations are safe for concurrent use.
	activeLinks struct {
		links sync.Map // link key -> *trackedLink
	}

	trackedLink struct {
		// close safe-closes the link; it must be idempotent.
		close func(ctx context.Context) error
		// refresher is nil for links which require no authorization refresh (management).
		refresher *refresher
	}

	// refresher drives periodic CBS token refresh for a single link. The timer is one-shot: each
	// successful refresh schedules the next one. Stop disarms the timer; stopping an already
	// stopped refresher is a no-op, which lets the refresh callback and the link close path race
	// safely.
	refresher struct {
		audience  string
		negotiate func(ctx context.Context) (time.Time, error)
		parent    context.Context

		mu      sync.Mutex
		timer   *time.Timer
		stopped bool
	}
)

func newActiveLinks() *activeLinks {
	return &activeLinks{}
}

// add registers a link under the given key. Duplicate keys are a construction failure.
func (al *activeLinks) add(key, address string, tl *trackedLink) error {
	if _, loaded := al.links.LoadOrStore(key, tl); loaded {
		return LinkCreationError{Address: address}
	}
	return nil
}

// remove atomically removes and returns the tracked entry for the key. The returned entry
// authorizes the caller to stop and dispose its refresher; nobody else will observe it again.
func (al *activeLinks) remove(key string) *trackedLink {
	v, ok := al.links.LoadAndDelete(key)
	if !ok {
		return nil
	}
	return v.(*trackedLink)
}

// len reports the number of tracked links.
func (al *activeLinks) len() int {
	count := 0
	al.links.Range(func(interface{}, interface{}) bool {
		count++
		return true
	})
	return count
}

// closeAll safe-closes every tracked link. It is the connection close fan-out: each close removes
// the link's own registry entry and stops its refresher. Links closed concurrently by their owners
// are tolerated since link close is idempotent.
func (al *activeLinks) closeAll(ctx context.Context) {
	var tracked []*trackedLink
	al.links.Range(func(_, v interface{}) bool {
		tracked = append(tracked, v.(*trackedLink))
		return true
	})

	for _, tl := range tracked {
		if err := tl.close(ctx); err != nil {
			log.WithError(err).Debug("closing link on connection shutdown")
		}
	}
}

func newRefresher(parent context.Context, audience string, negotiate func(ctx context.Context) (time.Time, error)) *refresher {
	return &refresher{
		audience:  audience,
		negotiate: negotiate,
		parent:    parent,
	}
}

// schedule arms the refresher to fire once the token with the given expiry needs replacing.
func (r *refresher) schedule(expiry time.Time) {
	interval := refreshInterval(expiry)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if r.timer == nil {
		r.timer = time.AfterFunc(interval, r.refresh)
		return
	}
	r.timer.Reset(interval)
}

// stop disarms the refresher. Safe to call multiple times and concurrently with a firing timer.
func (r *refresher) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
	}
}

func (r *refresher) refresh() {
	logger := log.WithField("audience", r.audience)
	logger.Debug("beginning authorization refresh")
	defer logger.Debug("authorization refresh complete")

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(r.parent, authorizationRefreshTimeout)
	defer cancel()

	expiry, err := r.negotiate(ctx)
	if err != nil {
		// The current token remains valid until its stated expiry; recovery is driven by the
		// caller reopening the link, not by retrying here.
		logger.WithError(err).Warn("authorization refresh failed; refresher disarmed")
		return
	}

	if expiry.Before(time.Now()) {
		logger.Warn("authorization refresh returned an expiry in the past; refresher disarmed")
		return
	}

	r.schedule(expiry)
}

// refreshInterval computes the delay before the next token refresh for a token expiring at the
// given time. The result is never below minimumAuthorizationRefresh.
func refreshInterval(expiry time.Time) time.Duration {
	interval := time.Until(expiry) + authorizationRefreshBuffer
	if interval < minimumAuthorizationRefresh {
		interval = minimumAuthorizationRefresh
	}
	return interval
}
