// Package rpc provides a request/response link pair over AMQP for management style operations such
// as claims-based security negotiation and runtime information queries.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	log "github.com/sirupsen/logrus"

	"github.com/Azure/azure-event-hubs-amqp-go/common"
)

const (
	replyPostfix   = "-reply-to-"
	statusCodeKey  = "status-code"
	descriptionKey = "status-description"
)

type (
	// Link is the bidirectional communication structure used for requests which expect a correlated
	// response, such as CBS negotiation and management node reads.
	Link struct {
		session       *amqp.Session
		receiver      *amqp.Receiver
		sender        *amqp.Sender
		clientAddress string
		rpcMu         sync.Mutex
		closeOnce     sync.Once
		id            string
	}

	// Response is the simplified response structure from an RPC like call
	Response struct {
		Code        int
		Description string
		Message     *amqp.Message
	}
)

// NewLink will build a new request/response link pair addressed to the given node.
func NewLink(conn *amqp.Client, address string) (*Link, error) {
	session, err := conn.NewSession()
	if err != nil {
		return nil, err
	}

	link, err := NewLinkWithSession(session, address)
	if err != nil {
		_ = session.Close(context.Background())
		return nil, err
	}
	return link, nil
}

// NewLinkWithSession will build a new request/response link pair on the provided session.
func NewLinkWithSession(session *amqp.Session, address string) (*Link, error) {
	sender, err := session.NewSender(
		amqp.LinkTargetAddress(address),
	)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	clientAddress := strings.ReplaceAll(address, "$", "") + replyPostfix + id
	receiver, err := session.NewReceiver(
		amqp.LinkSourceAddress(address),
		amqp.LinkTargetAddress(clientAddress),
	)
	if err != nil {
		_ = sender.Close(context.Background())
		return nil, err
	}

	return &Link{
		sender:        sender,
		receiver:      receiver,
		session:       session,
		clientAddress: clientAddress,
		id:            id,
	}, nil
}

// RetryableRPC attempts to retry a request a number of times with delay
func (l *Link) RetryableRPC(ctx context.Context, times int, delay time.Duration, msg *amqp.Message) (*Response, error) {
	boff := &backoff.Backoff{
		Min:    delay,
		Max:    30 * time.Second,
		Jitter: true,
	}

	res, err := common.Retry(times, boff, func() (interface{}, error) {
		res, err := l.RPC(ctx, msg)
		if err != nil {
			log.Debugf("error in RPC via link %s: %v", l.id, err)
			return nil, err
		}

		switch {
		case res.Success():
			log.Debugf("successful rpc on link %s: status code %d and description: %s", l.id, res.Code, res.Description)
			return res, nil
		case res.ServerError():
			return nil, &common.Retryable{Message: fmt.Sprintf("server error link %s: status code %d and description: %s", l.id, res.Code, res.Description)}
		case res.ClientError():
			return nil, fmt.Errorf("client error link %s: status code %d and description: %s", l.id, res.Code, res.Description)
		default:
			return nil, &common.Retryable{Message: fmt.Sprintf("unhandled error link %s: status code %d and description: %s", l.id, res.Code, res.Description)}
		}
	})
	if err != nil {
		return nil, err
	}
	return res.(*Response), nil
}

// RPC sends a request and waits on a response for that request
func (l *Link) RPC(ctx context.Context, msg *amqp.Message) (*Response, error) {
	l.rpcMu.Lock()
	defer l.rpcMu.Unlock()

	if msg.Properties == nil {
		msg.Properties = &amqp.MessageProperties{}
	}
	msg.Properties.ReplyTo = &l.clientAddress
	if msg.Properties.MessageID == nil {
		msg.Properties.MessageID = uuid.New().String()
	}

	if err := l.sender.Send(ctx, msg); err != nil {
		return nil, err
	}

	res, err := l.receiver.Receive(ctx)
	if err != nil {
		return nil, err
	}

	if err := l.receiver.AcceptMessage(ctx, res); err != nil {
		return nil, err
	}

	response := &Response{
		Message: res,
	}

	statusCode, ok := res.ApplicationProperties[statusCodeKey]
	if !ok {
		return nil, errors.New("status code was not found on rpc message")
	}
	switch code := statusCode.(type) {
	case int32:
		response.Code = int(code)
	case int64:
		response.Code = int(code)
	default:
		return nil, errors.New("status code was not of a numeric type")
	}

	if description, ok := res.ApplicationProperties[descriptionKey].(string); ok {
		response.Description = description
	}

	return response, nil
}

// ClientAddress returns the reply-to address messages are correlated through.
func (l *Link) ClientAddress() string {
	return l.clientAddress
}

// ID returns the identifier assigned to the link pair.
func (l *Link) ID() string {
	return l.id
}

// Close the link sender, receiver and session. Closing more than once is a no-op.
func (l *Link) Close(ctx context.Context) error {
	var err error
	l.closeOnce.Do(func() {
		if l.sender != nil {
			err = l.sender.Close(ctx)
		}

		if l.receiver != nil {
			if cerr := l.receiver.Close(ctx); err == nil {
				err = cerr
			}
		}

		if l.session != nil {
			if cerr := l.session.Close(ctx); err == nil {
				err = cerr
			}
		}
	})
	return err
}

// Success return true if the status code is between 200 and 300
func (r *Response) Success() bool {
	return r.Code >= 200 && r.Code < 300
}

// ServerError is true when status code is 500 or greater
func (r *Response) ServerError() bool {
	return r.Code >= 500
}

// ClientError is true when status code is in the 400s
func (r *Response) ClientError() bool {
	return r.Code >= 400 && r.Code < 500
}
