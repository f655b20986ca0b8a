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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProducerLinkAddress(t *testing.T) {
	s := newTestScope(t)

	unpinned := &ProducerLink{scope: s}
	assert.Equal(t, "myhub", unpinned.getAddress())
	assert.Empty(t, unpinned.PartitionID())

	partition := "2"
	pinned := &ProducerLink{scope: s, partitionID: &partition}
	assert.Equal(t, "myhub/Partitions/2", pinned.getAddress())
	assert.Equal(t, "2", pinned.PartitionID())
}

func TestProducerLinkOptionsCarryTimeout(t *testing.T) {
	link := &ProducerLink{
		scope: newTestScope(t),
		name:  "scope;conn:sess:link",
		key:   "linkKey",
	}

	noDeadline := link.linkOptions(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	withDeadline := link.linkOptions(ctx)

	assert.Len(t, withDeadline, len(noDeadline), "the timeout property is always advertised")
}

func TestProducerOpenRejectsCancelledContext(t *testing.T) {
	s := newTestScope(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.OpenProducerLink(ctx, "0")
	assert.ErrorIs(t, err, context.Canceled)
}
