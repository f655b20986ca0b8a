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
	// DefaultConsumerGroup is the default name for a event stream consumer group
	DefaultConsumerGroup = "$Default"

	defaultPrefetchCount = 100

	epochLinkProperty          = "com.microsoft:epoch"
	entityTypeLinkProperty     = "com.microsoft:entity-type"
	receiverRuntimeMetricValue = "com.microsoft:enable-receiver-runtime-metric"

	entityTypeEventHub      int64 = 7
	entityTypeConsumerGroup int64 = 8
)

type (
	// ConsumerLink is an attached receiving link for one partition of a consumer group. The link
	// stays authorized through background token refresh until it is closed or its connection goes
	// away.
	ConsumerLink struct {
		scope         *Scope
		session       *session
		receiver      *amqp.Receiver
		consumerGroup string
		partitionID   string
		name          string
		key           string

		prefetchCount  uint32
		ownerLevel     *int64
		runtimeMetrics bool

		closeOnce sync.Once
	}

	// ConsumerOption provides a structure for configuring consumer links
	ConsumerOption func(l *ConsumerLink) error
)

// ConsumerWithPrefetchCount configures the credit issued to the service. A zero prefetch disables
// automatic credit flow.
func ConsumerWithPrefetchCount(prefetch uint32) ConsumerOption {
	return func(l *ConsumerLink) error {
		l.prefetchCount = prefetch
		return nil
	}
}

// ConsumerWithOwnerLevel makes the link an exclusive (epoch) consumer for its partition,
// displacing consumers with a lower owner level.
func ConsumerWithOwnerLevel(level int64) ConsumerOption {
	return func(l *ConsumerLink) error {
		l.ownerLevel = &level
		return nil
	}
}

// ConsumerWithRuntimeMetrics asks the service to stamp delivered events with information about
// the last event enqueued in the partition.
func ConsumerWithRuntimeMetrics() ConsumerOption {
	return func(l *ConsumerLink) error {
		l.runtimeMetrics = true
		return nil
	}
}

// OpenConsumerLink attaches a receiving link for the given consumer group and partition, starting
// from the given position. The link is authorized for the Listen claim before attach and is
// tracked for token refresh until closed.
func (s *Scope) OpenConsumerLink(ctx context.Context, consumerGroup, partitionID string, position EventPosition, opts ...ConsumerOption) (*ConsumerLink, error) {
	ctx, span := s.startSpanFromContext(ctx, "eh.Scope.OpenConsumerLink")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if consumerGroup == "" {
		return nil, ArgumentError{Argument: "consumerGroup", Reason: "must not be empty"}
	}
	if partitionID == "" {
		return nil, ArgumentError{Argument: "partitionID", Reason: "must not be empty"}
	}

	link := &ConsumerLink{
		scope:         s,
		consumerGroup: consumerGroup,
		partitionID:   partitionID,
		prefetchCount: defaultPrefetchCount,
		key:           uuid.New().String(),
	}
	for _, opt := range opts {
		if err := opt(link); err != nil {
			return nil, err
		}
	}

	filter, err := position.filterExpression()
	if err != nil {
		return nil, err
	}

	conn, err := s.conn.Get(ctx)
	if err != nil {
		return nil, err
	}

	address := link.getAddress()
	audience := s.getEntityAudience(address)
	expiry, err := s.negotiateClaim(ctx, conn, audience, claimListen)
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

	receiver, err := amqpSession.NewReceiver(link.linkOptions(filter)...)
	if err != nil {
		// Aborting the session also tears down whatever link artefacts attach left behind.
		_ = amqpSession.Close(ctx)
		return nil, LinkCreationError{Address: address, Inner: err}
	}
	link.receiver = receiver

	refresh := newRefresher(s.ctx, audience, func(ctx context.Context) (time.Time, error) {
		return s.negotiateClaim(ctx, conn, audience, claimListen)
	})
	if err := s.links.add(link.key, address, &trackedLink{close: link.Close, refresher: refresh}); err != nil {
		_ = receiver.Close(ctx)
		_ = amqpSession.Close(ctx)
		tab.For(ctx).Error(err)
		return nil, err
	}
	refresh.schedule(expiry)

	return link, nil
}

func (l *ConsumerLink) linkOptions(filter string) []amqp.LinkOption {
	opts := []amqp.LinkOption{
		amqp.LinkSourceAddress(l.getAddress()),
		amqp.LinkTargetAddress(l.key),
		amqp.LinkName(l.name),
		amqp.LinkSenderSettle(amqp.ModeSettled),
		amqp.LinkReceiverSettle(amqp.ModeFirst),
		amqp.LinkSelectorFilter(filter),
		amqp.LinkPropertyInt64(entityTypeLinkProperty, entityTypeConsumerGroup),
	}

	if l.autoFlow() {
		opts = append(opts, amqp.LinkCredit(l.prefetchCount))
	} else {
		opts = append(opts, amqp.LinkWithManualCredits())
	}
	if l.ownerLevel != nil {
		opts = append(opts, amqp.LinkPropertyInt64(epochLinkProperty, *l.ownerLevel))
	}
	if l.runtimeMetrics {
		opts = append(opts, amqp.LinkSourceCapabilities(receiverRuntimeMetricValue))
	}
	return opts
}

func (l *ConsumerLink) autoFlow() bool {
	return l.prefetchCount > 0
}

// Receive waits for the next event on the link
func (l *ConsumerLink) Receive(ctx context.Context) (*amqp.Message, error) {
	return l.receiver.Receive(ctx)
}

// Receiver exposes the underlying AMQP receiver for callers implementing their own delivery loop.
func (l *ConsumerLink) Receiver() *amqp.Receiver {
	return l.receiver
}

// LinkName returns the diagnostic name the link attached with
func (l *ConsumerLink) LinkName() string {
	return l.name
}

// ConsumerGroup returns the consumer group the link reads on behalf of
func (l *ConsumerLink) ConsumerGroup() string {
	return l.consumerGroup
}

// PartitionID returns the partition the link reads from
func (l *ConsumerLink) PartitionID() string {
	return l.partitionID
}

// Close stops the link's token refresh, removes it from the scope's tracking and detaches the
// link and its session. Closing more than once is a no-op.
func (l *ConsumerLink) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		if tracked := l.scope.links.remove(l.key); tracked != nil && tracked.refresher != nil {
			tracked.refresher.stop()
		}
		err = l.receiver.Close(ctx)
		if cerr := l.session.Close(ctx); err == nil {
			err = cerr
		}
	})
	return err
}

func (l *ConsumerLink) getAddress() string {
	return fmt.Sprintf("%s/ConsumerGroups/%s/Partitions/%s", l.scope.entityPath, l.consumerGroup, l.partitionID)
}
