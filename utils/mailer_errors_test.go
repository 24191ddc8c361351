package utils

import (
	"errors"
	"fmt"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassifySendError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want SendErrorKind
	}{
		{"nil stays nil", nil, ""},
		{"net timeout", timeoutErr{}, SendErrorTimeout},
		{"smtp 535", &textproto.Error{Code: 535, Msg: "5.7.8 bad credentials"}, SendErrorAuth},
		{"smtp 530", &textproto.Error{Code: 530, Msg: "auth required"}, SendErrorAuth},
		{"smtp 550", &textproto.Error{Code: 550, Msg: "mailbox unavailable"}, SendErrorRejected},
		{"smtp 421", &textproto.Error{Code: 421, Msg: "try again later"}, SendErrorRejected},
		{"auth phrase", errors.New("server said: authentication failure"), SendErrorAuth},
		{"timeout phrase", errors.New("dial tcp: connection timed out"), SendErrorTimeout},
		{"refused phrase", errors.New("connection refused"), SendErrorRejected},
		{"unknown", errors.New("something odd happened"), SendErrorUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifySendError(tt.err)
			if tt.err == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
		})
	}
}

func TestClassifySendErrorPassesThroughClassified(t *testing.T) {
	original := &SendError{Kind: SendErrorAuth, Err: errors.New("bad login")}

	got := ClassifySendError(original)
	assert.Same(t, original, got)

	// Classification survives wrapping
	wrapped := fmt.Errorf("send to contact 5: %w", original)
	got = ClassifySendError(wrapped)
	assert.Same(t, original, got)
}

func TestSendErrorUnwrap(t *testing.T) {
	inner := errors.New("535 rejected")
	err := ClassifySendError(inner)
	assert.True(t, errors.Is(err, inner))
	assert.Contains(t, err.Error(), "authentication failed")
}
