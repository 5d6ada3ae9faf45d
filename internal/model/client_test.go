package model

import (
	"context"
	"errors"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestClassifyAPIErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		class  ErrorClass
		expect time.Duration
	}{
		{
			name:   "rate limit with delay hint",
			err:    &openai.APIError{HTTPStatusCode: 429, Message: "Rate limit reached. Please try again in 20s."},
			class:  ClassRateLimited,
			expect: 20 * time.Second,
		},
		{
			name:  "rate limit without hint",
			err:   &openai.APIError{HTTPStatusCode: 429, Message: "Too many requests"},
			class: ClassRateLimited,
		},
		{
			name:  "server error",
			err:   &openai.APIError{HTTPStatusCode: 503, Message: "overloaded"},
			class: ClassTransient,
		},
		{
			name:  "auth failure",
			err:   &openai.APIError{HTTPStatusCode: 401, Message: "invalid api key"},
			class: ClassNonRetryable,
		},
		{
			name:  "bad request",
			err:   &openai.APIError{HTTPStatusCode: 400, Message: "image too large"},
			class: ClassNonRetryable,
		},
		{
			name:  "transport failure",
			err:   &openai.RequestError{HTTPStatusCode: 0, Err: errors.New("connection refused")},
			class: ClassTransient,
		},
		{
			name:  "deadline exceeded",
			err:   context.DeadlineExceeded,
			class: ClassTransient,
		},
		{
			name:  "unknown error defaults to non-retryable",
			err:   errors.New("something odd"),
			class: ClassNonRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ce := classify("gpt-4o", tt.err)
			assert.Equal(t, tt.class, ce.Class)
			assert.Equal(t, tt.expect, ce.RetryAfter)
			assert.Equal(t, "gpt-4o", ce.Variant)
		})
	}
}

func TestExtractRetryAfter(t *testing.T) {
	tests := []struct {
		msg    string
		expect time.Duration
	}{
		{"Please try again in 20s.", 20 * time.Second},
		{"Please try again in 1.5s.", 1500 * time.Millisecond},
		{"retry after 45 seconds", 45 * time.Second},
		{`details: retry_delay { seconds: 37 }`, 37 * time.Second},
		{"no hint here", 0},
		{"", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expect, extractRetryAfter(tt.msg), "msg: %q", tt.msg)
	}
}

func TestAsCallErrorWrapsUnknown(t *testing.T) {
	plain := errors.New("boom")
	ce := AsCallError(plain)
	assert.Equal(t, ClassNonRetryable, ce.Class)
	assert.ErrorIs(t, ce, plain)
}

func TestCallErrorUnwrap(t *testing.T) {
	inner := errors.New("429")
	ce := &CallError{Class: ClassRateLimited, Variant: "gpt-4o", Err: inner}
	assert.ErrorIs(t, ce, inner)
}

func TestVisionRequiredForImagePayload(t *testing.T) {
	client, err := NewOpenAIClient("test-key", time.Second)
	assert.NoError(t, err)

	_, err = client.Complete(context.Background(), Variant{Name: "text-only"}, Request{
		Prompt:   "find the button",
		ImagePNG: []byte{0x89, 'P', 'N', 'G'},
	})
	ce := AsCallError(err)
	assert.Equal(t, ClassNonRetryable, ce.Class)
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", time.Second)
	assert.Error(t, err)
}
