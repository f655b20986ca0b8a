package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseClassification(t *testing.T) {
	cases := []struct {
		code        int
		success     bool
		serverError bool
		clientError bool
	}{
		{200, true, false, false},
		{202, true, false, false},
		{299, true, false, false},
		{300, false, false, false},
		{400, false, false, true},
		{404, false, false, true},
		{499, false, false, true},
		{500, false, true, false},
		{503, false, true, false},
	}

	for _, tc := range cases {
		res := &Response{Code: tc.code}
		assert.Equal(t, tc.success, res.Success(), "Success for %d", tc.code)
		assert.Equal(t, tc.serverError, res.ServerError(), "ServerError for %d", tc.code)
		assert.Equal(t, tc.clientError, res.ClientError(), "ClientError for %d", tc.code)
	}
}
