package eventhub

import (
	"context"
	"time"

	"github.com/Azure/go-amqp"
	"github.com/devigned/tab"
	log "github.com/sirupsen/logrus"

	"github.com/Azure/azure-event-hubs-amqp-go/auth"
)

const (
	cbsOperationKey      = "operation"
	cbsOperationPutToken = "put-token"
	cbsTokenTypeKey      = "type"
	cbsAudienceKey       = "name"
	cbsExpirationKey     = "expiration"

	cbsNegotiateRetries = 3
	cbsNegotiateDelay   = 1 * time.Second
)

// Claims requested alongside CBS authorization for a link role.
const (
	claimListen = "Listen"
	claimSend   = "Send"
)

// negotiateClaim puts a token to the connection's CBS link for the given audience and returns the
// expiry driving the next refresh. The token fetch and the put-token exchange abort if either the
// caller's context or the scope is cancelled.
func (s *Scope) negotiateClaim(ctx context.Context, conn *activeConnection, audience string, claims ...string) (time.Time, error) {
	ctx, span := s.startSpanFromContext(ctx, "eh.Scope.negotiateClaim")
	defer span.End()

	ctx, cancel := s.joinScopeContext(ctx)
	defer cancel()

	token, err := s.tokenProvider.GetToken(ctx, audience)
	if err != nil {
		tab.For(ctx).Error(err)
		return time.Time{}, AuthorizationError{Audience: audience, Inner: err}
	}

	expiry, err := token.ExpiryTime()
	if err != nil {
		return time.Time{}, AuthorizationError{Audience: audience, Inner: err}
	}

	log.WithFields(log.Fields{
		"audience": audience,
		"claims":   claims,
		"expiry":   token.Expiry,
	}).Debug("negotiating cbs claim")

	msg := buildPutTokenMessage(token, audience)
	if _, err := conn.cbs.RetryableRPC(ctx, cbsNegotiateRetries, cbsNegotiateDelay, msg); err != nil {
		tab.For(ctx).Error(err)
		return time.Time{}, AuthorizationError{Audience: audience, Inner: err}
	}

	return expiry, nil
}

func buildPutTokenMessage(token *auth.Token, audience string) *amqp.Message {
	return &amqp.Message{
		Value: token.Token,
		ApplicationProperties: map[string]interface{}{
			cbsOperationKey:  cbsOperationPutToken,
			cbsTokenTypeKey:  string(token.TokenType),
			cbsAudienceKey:   audience,
			cbsExpirationKey: token.Expiry,
		},
	}
}

// joinScopeContext derives a context cancelled when either the given context or the scope itself
// is cancelled, so in-flight token operations abort on scope close.
func (s *Scope) joinScopeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := make(chan struct{})
	go func() {
		select {
		case <-s.ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return ctx, func() {
		close(stop)
		cancel()
	}
}
