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
	"errors"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/devigned/tab"
	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/Azure/azure-event-hubs-amqp-go/rpc"
)

const (
	managementAddress = "$management"

	msftVendor          = "com.microsoft"
	entityTypeKey       = "type"
	entityNameKey       = "name"
	partitionNameKey    = "partition"
	securityTokenKey    = "security_token"
	eventHubEntityType  = msftVendor + ":eventhub"
	partitionEntityType = msftVendor + ":partition"
	operationKey        = "operation"
	readOperationKey    = "READ"

	mgmtRetries = 3
	mgmtDelay   = 1 * time.Second
)

type (
	// ManagementLink is a request/response link to the Event Hub management node. Management
	// operations carry their own security token, so the link needs no background refresh.
	ManagementLink struct {
		scope *Scope
		link  *rpc.Link
		key   string

		closeOnce sync.Once
	}

	// HubRuntimeInformation provides management node information about a given Event Hub instance
	HubRuntimeInformation struct {
		Path           string    `mapstructure:"name"`
		CreatedAt      time.Time `mapstructure:"created_at"`
		PartitionCount int       `mapstructure:"partition_count"`
		PartitionIDs   []string  `mapstructure:"partition_ids"`
	}

	// HubPartitionRuntimeInformation provides management node information about a given Event
	// Hub partition
	HubPartitionRuntimeInformation struct {
		HubPath                 string    `mapstructure:"name"`
		PartitionID             string    `mapstructure:"partition"`
		BeginningSequenceNumber int64     `mapstructure:"begin_sequence_number"`
		LastSequenceNumber      int64     `mapstructure:"last_enqueued_sequence_number"`
		LastEnqueuedOffset      string    `mapstructure:"last_enqueued_offset"`
		LastEnqueuedTimeUtc     time.Time `mapstructure:"last_enqueued_time_utc"`
	}
)

// OpenManagementLink attaches a request/response link pair to the management node and tracks it
// until closed.
func (s *Scope) OpenManagementLink(ctx context.Context) (*ManagementLink, error) {
	ctx, span := s.startSpanFromContext(ctx, "eh.Scope.OpenManagementLink")
	defer span.End()

	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conn, err := s.conn.Get(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rpcLink, err := rpc.NewLink(conn.client, managementAddress)
	if err != nil {
		return nil, LinkCreationError{Address: managementAddress, Inner: err}
	}

	link := &ManagementLink{
		scope: s,
		link:  rpcLink,
		key:   uuid.New().String(),
	}
	if err := s.links.add(link.key, managementAddress, &trackedLink{close: link.Close}); err != nil {
		_ = rpcLink.Close(ctx)
		tab.For(ctx).Error(err)
		return nil, err
	}

	return link, nil
}

// HubRuntimeInformation requests runtime information for the scope's Event Hub
func (l *ManagementLink) HubRuntimeInformation(ctx context.Context) (*HubRuntimeInformation, error) {
	ctx, span := l.scope.startSpanFromContext(ctx, "eh.ManagementLink.HubRuntimeInformation")
	defer span.End()

	msg := &amqp.Message{
		ApplicationProperties: map[string]interface{}{
			operationKey:  readOperationKey,
			entityTypeKey: eventHubEntityType,
			entityNameKey: l.scope.entityPath,
		},
	}

	res, err := l.call(ctx, msg)
	if err != nil {
		return nil, err
	}
	return newHubRuntimeInformation(res.Message)
}

// PartitionRuntimeInformation requests runtime information for one partition of the scope's
// Event Hub
func (l *ManagementLink) PartitionRuntimeInformation(ctx context.Context, partitionID string) (*HubPartitionRuntimeInformation, error) {
	ctx, span := l.scope.startSpanFromContext(ctx, "eh.ManagementLink.PartitionRuntimeInformation")
	defer span.End()

	msg := &amqp.Message{
		ApplicationProperties: map[string]interface{}{
			operationKey:     readOperationKey,
			entityTypeKey:    partitionEntityType,
			entityNameKey:    l.scope.entityPath,
			partitionNameKey: partitionID,
		},
	}

	res, err := l.call(ctx, msg)
	if err != nil {
		return nil, err
	}
	return newHubPartitionRuntimeInformation(res.Message)
}

func (l *ManagementLink) call(ctx context.Context, msg *amqp.Message) (*rpc.Response, error) {
	if err := l.scope.checkOpen(); err != nil {
		return nil, err
	}

	ctx, cancel := l.scope.joinScopeContext(ctx)
	defer cancel()

	token, err := l.scope.tokenProvider.GetToken(ctx, l.scope.getEntityAudience(l.scope.entityPath))
	if err != nil {
		return nil, err
	}
	msg.ApplicationProperties[securityTokenKey] = token.Token

	return l.link.RetryableRPC(ctx, mgmtRetries, mgmtDelay, msg)
}

// Close removes the link from the scope's tracking and detaches the underlying link pair.
// Closing more than once is a no-op.
func (l *ManagementLink) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		l.scope.links.remove(l.key)
		err = l.link.Close(ctx)
	})
	return err
}

func newHubRuntimeInformation(msg *amqp.Message) (*HubRuntimeInformation, error) {
	values, ok := msg.Value.(map[string]interface{})
	if !ok {
		return nil, errors.New("eventhub: management response value was not a map")
	}

	var info HubRuntimeInformation
	if err := mapstructure.Decode(values, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func newHubPartitionRuntimeInformation(msg *amqp.Message) (*HubPartitionRuntimeInformation, error) {
	values, ok := msg.Value.(map[string]interface{})
	if !ok {
		return nil, errors.New("eventhub: management response value was not a map")
	}

	var info HubPartitionRuntimeInformation
	if err := mapstructure.Decode(values, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
