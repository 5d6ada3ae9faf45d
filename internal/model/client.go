package model

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Request is a single prompt/image payload for one model variant.
type Request struct {
	// Prompt is the instruction text sent to the model
	Prompt string
	// ImagePNG is an optional PNG payload for vision requests
	ImagePNG []byte
	// MaxTokens bounds the completion length (0 uses the client default)
	MaxTokens int
}

// Response is the raw model output for a successful call.
type Response struct {
	// Content is the completion text
	Content string
	// Model is the variant name that produced the response
	Model string
}

// Client performs a single synchronous request to a named model variant.
// Implementations must return a *CallError for classified failures.
type Client interface {
	Complete(ctx context.Context, variant Variant, req Request) (*Response, error)
}

const defaultMaxTokens = 500

// OpenAIClient calls the OpenAI-compatible chat completions API.
type OpenAIClient struct {
	client  *openai.Client
	timeout time.Duration
}

// NewOpenAIClient creates a client for the given API key. timeout bounds each
// individual request; zero disables the per-request deadline.
func NewOpenAIClient(apiKey string, timeout time.Duration) (*OpenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key not provided")
	}
	return &OpenAIClient{
		client:  openai.NewClient(apiKey),
		timeout: timeout,
	}, nil
}

// Complete sends the prompt (plus image, when present and supported) to the
// named variant and returns the completion text.
func (c *OpenAIClient) Complete(ctx context.Context, variant Variant, req Request) (*Response, error) {
	if len(req.ImagePNG) > 0 && !variant.Vision {
		return nil, &CallError{
			Class:   ClassNonRetryable,
			Variant: variant.Name,
			Err:     fmt.Errorf("variant %s does not support image input", variant.Name),
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	parts := []openai.ChatMessagePart{
		{
			Type: openai.ChatMessagePartTypeText,
			Text: req.Prompt,
		},
	}
	if len(req.ImagePNG) > 0 {
		imageBase64 := base64.StdEncoding.EncodeToString(req.ImagePNG)
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    fmt.Sprintf("data:image/png;base64,%s", imageBase64),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: variant.Name,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:         openai.ChatMessageRoleUser,
				MultiContent: parts,
			},
		},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return nil, classify(variant.Name, err)
	}

	if len(resp.Choices) == 0 {
		return nil, &CallError{
			Class:   ClassTransient,
			Variant: variant.Name,
			Err:     fmt.Errorf("empty response from model"),
		}
	}

	return &Response{
		Content: resp.Choices[0].Message.Content,
		Model:   variant.Name,
	}, nil
}

// classify maps a provider error onto the retry taxonomy.
func classify(variant string, err error) *CallError {
	ce := &CallError{Variant: variant, Err: err}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			ce.Class = ClassRateLimited
			ce.RetryAfter = extractRetryAfter(apiErr.Message)
		case apiErr.HTTPStatusCode >= 500:
			ce.Class = ClassTransient
		default:
			// 400/401/403/404: a configuration-level fault; switching
			// variants cannot fix it.
			ce.Class = ClassNonRetryable
		}
		return ce
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		switch {
		case reqErr.HTTPStatusCode == 429:
			ce.Class = ClassRateLimited
		case reqErr.HTTPStatusCode == 0 || reqErr.HTTPStatusCode >= 500:
			ce.Class = ClassTransient
		default:
			ce.Class = ClassNonRetryable
		}
		return ce
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		ce.Class = ClassTransient
		return ce
	}

	ce.Class = ClassNonRetryable
	return ce
}

// Rate-limit messages embed the suggested delay in a few shapes, e.g.
// "Please try again in 20s", "retry after 30 seconds" or a serialized
// "retry_delay { seconds: 37 }" detail.
var retryAfterPatterns = []*regexp.Regexp{
	regexp.MustCompile(`retry_delay[^}]*seconds:\s*(\d+)`),
	regexp.MustCompile(`(?i)try again in\s+([\d.]+)\s*s`),
	regexp.MustCompile(`(?i)retry after\s+(\d+)`),
}

// extractRetryAfter parses a machine-readable retry delay out of an error
// message. Returns zero when no hint is present.
func extractRetryAfter(msg string) time.Duration {
	for _, re := range retryAfterPatterns {
		m := re.FindStringSubmatch(msg)
		if len(m) != 2 {
			continue
		}
		secs, err := strconv.ParseFloat(m[1], 64)
		if err != nil || secs <= 0 {
			continue
		}
		return time.Duration(secs * float64(time.Second))
	}
	return 0
}
