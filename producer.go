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
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/devigned/tab"
	"github.com/google/uuid"
)

const (
	timeoutLinkProperty = "com.microsoft:timeout"

	// defaultProducerTimeout is the operation timeout advertised on the link when the caller's
	// context carries no deadline.
	defaultProducerTimeout = 60 * time.Second
)

type (
	// ProducerLink is an attached sending link for an Event Hub, optionally pinned to one
	// partition. The link stays authorized through background token refresh until it is closed or
	// its connection goes away.
	ProducerLink struct {
		scope       *Scope
		session     *session
		sender      *amqp.Sender
		partitionID *string
		name        string
		key         string

		closeOnce sync.Once
	}
)

// OpenProducerLink attaches a sending link targeting the scope's entity, or one of its partitions
// when partitionID is non-empty. The link is authorized for the Send claim before attach and is
// tracked for token refresh until closed.
func (s *Scope) OpenProducerLink(ctx context.Context, partitionID string) (*ProducerLink, error) {
	ctx, span := s.startSpanFromContext(ctx, "eh.Scope.OpenProducerLink")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	link := &ProducerLink{
		scope: s,
		key:   uuid.New().String(),
	}
	if partitionID != "" {
		link.partitionID = &partitionID
	}

	conn, err := s.conn.Get(ctx)
	if err != nil {
		return nil, err
	}

	address := link.getAddress()
	audience := s.getEntityAudience(address)
	expiry, err := s.negotiateClaim(ctx, conn, audience, claimSend)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	amqpSession, err := conn.client.NewSession()
	if err != nil {
		return nil, LinkCreationError{Address: address, Inner: err}
	}
	link.session = newSession(amqpSession)
	link.name = linkName(s.id, conn.id, link.session.sessionID, link.key)

	sender, err := amqpSession.NewSender(link.linkOptions(ctx)...)
	if err != nil {
		_ = amqpSession.Close(ctx)
		return nil, LinkCreationError{Address: address, Inner: err}
	}
	link.sender = sender

	refresh := newRefresher(s.ctx, audience, func(ctx context.Context) (time.Time, error) {
		return s.negotiateClaim(ctx, conn, audience, claimSend)
	})
	if err := s.links.add(link.key, address, &trackedLink{close: link.Close, refresher: refresh}); err != nil {
		_ = sender.Close(ctx)
		_ = amqpSession.Close(ctx)
		tab.For(ctx).Error(err)
		return nil, err
	}
	refresh.schedule(expiry)

	return link, nil
}

func (l *ProducerLink) linkOptions(ctx context.Context) []amqp.LinkOption {
	timeout := defaultProducerTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 {
			timeout = remaining
		}
	}

	return []amqp.LinkOption{
		amqp.LinkSourceAddress(l.key),
		amqp.LinkTargetAddress(l.getAddress()),
		amqp.LinkName(l.name),
		amqp.LinkSenderSettle(amqp.ModeSettled),
		amqp.LinkPropertyInt64(entityTypeLinkProperty, entityTypeEventHub),
		amqp.LinkPropertyInt64(timeoutLinkProperty, timeout.Milliseconds()),
	}
}

// Send delivers a message over the link
func (l *ProducerLink) Send(ctx context.Context, msg *amqp.Message) error {
	return l.sender.Send(ctx, msg)
}

// Sender exposes the underlying AMQP sender for callers implementing their own batching.
func (l *ProducerLink) Sender() *amqp.Sender {
	return l.sender
}

// LinkName returns the diagnostic name the link attached with
func (l *ProducerLink) LinkName() string {
	return l.name
}

// PartitionID returns the partition the link is pinned to, or empty when the service assigns
// partitions.
func (l *ProducerLink) PartitionID() string {
	if l.partitionID == nil {
		return ""
	}
	return *l.partitionID
}

// Close stops the link's token refresh, removes it from the scope's tracking and detaches the
// link and its session. Closing more than once is a no-op.
func (l *ProducerLink) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		if tracked := l.scope.links.remove(l.key); tracked != nil && tracked.refresher != nil {
			tracked.refresher.stop()
		}
		err = l.sender.Close(ctx)
		if cerr := l.session.Close(ctx); err == nil {
			err = cerr
		}
	})
	return err
}

func (l *ProducerLink) getAddress() string {
	if l.partitionID != nil {
		return fmt.Sprintf("%s/Partitions/%s", l.scope.entityPath, *l.partitionID)
	}
	return l.scope.entityPath
}
