package openai

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"

	"github.com/centsible/infera/internal/backend"
)

func TestConfidenceFor(t *testing.T) {
	assert.Equal(t, 0.95, confidenceFor(openai.FinishReasonStop))
	assert.Equal(t, 0.6, confidenceFor(openai.FinishReasonLength))
	assert.Equal(t, 0.0, confidenceFor(openai.FinishReasonContentFilter))
	assert.Equal(t, 0.5, confidenceFor(openai.FinishReasonNull))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want backend.ErrorKind
	}{
		{
			name: "unauthorized",
			err:  &openai.APIError{HTTPStatusCode: http.StatusUnauthorized},
			want: backend.ErrorPermissionDenied,
		},
		{
			name: "rate limited",
			err:  &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests},
			want: backend.ErrorUnavailable,
		},
		{
			name: "gateway timeout",
			err:  &openai.APIError{HTTPStatusCode: http.StatusGatewayTimeout},
			want: backend.ErrorTimeout,
		},
		{
			name: "server error",
			err:  &openai.APIError{HTTPStatusCode: http.StatusInternalServerError},
			want: backend.ErrorProcessing,
		},
		{
			name: "context deadline",
			err:  context.DeadlineExceeded,
			want: backend.ErrorTimeout,
		},
		{
			name: "plain error",
			err:  errors.New("dial tcp: connection refused"),
			want: backend.ErrorNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestNewDefaults(t *testing.T) {
	b := New(Config{APIKey: "sk-test"})
	assert.Equal(t, backend.KindRemote, b.Kind())
	assert.Equal(t, "openai-chat", b.Name())
	assert.Equal(t, openai.GPT4oMini, b.config.Model)
	assert.NotZero(t, b.config.Timeout)
}
