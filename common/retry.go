// Package common holds small helpers shared by the AMQP plumbing packages.
package common

import (
	"time"

	"github.com/jpillora/backoff"
)

type (
	// Retryable represents an error which should be able to be retried
	Retryable struct {
		Message string
	}
)

// Error implementation for Retryable
func (r *Retryable) Error() string {
	return r.Message
}

// Retry will attempt an action a number of times, sleeping between attempts with the delays
// produced by boff. Only errors of type *Retryable are retried; any other error aborts immediately.
func Retry(times int, boff *backoff.Backoff, action func() (interface{}, error)) (interface{}, error) {
	boff.Reset()
	var lastErr error
	for i := 0; i < times; i++ {
		item, err := action()
		if err != nil {
			if retryable, ok := err.(*Retryable); ok {
				lastErr = retryable
				time.Sleep(boff.Duration())
				continue
			}
			return nil, err
		}
		return item, nil
	}
	return nil, lastErr
}
