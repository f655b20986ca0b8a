package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpiryTime(t *testing.T) {
	token := NewToken(CBSTokenTypeSAS, "tok", "1686830400")

	expiry, err := token.ExpiryTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2023, 6, 15, 12, 0, 0, 0, time.UTC), expiry)
	assert.Equal(t, time.UTC, expiry.Location())
}

func TestExpiryTimeRejectsNonNumeric(t *testing.T) {
	token := NewToken(CBSTokenTypeJWT, "tok", "2023-06-15T12:00:00Z")
	_, err := token.ExpiryTime()
	assert.Error(t, err)
}
