package eventhub

import (
	"github.com/Azure/go-amqp"
	"github.com/google/uuid"
)

type (
	// session is a wrapper for the AMQP session carrying the identifier used in link names
	session struct {
		*amqp.Session
		sessionID string
	}
)

// newSession is a constructor for a session which will pre-populate the session identifier
func newSession(amqpSession *amqp.Session) *session {
	return &session{
		Session:   amqpSession,
		sessionID: uuid.New().String(),
	}
}

func (s *session) String() string {
	return s.sessionID
}
