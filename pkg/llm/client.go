// Package llm streams chat completions from an OpenAI-compatible provider.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	svcerr "github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/errors"
)

// Config holds configuration for the generation client.
type Config struct {
	APIKey         string        `json:"api_key"`
	BaseURL        string        `json:"base_url"`
	ModelName      string        `json:"model_name"`
	RequestTimeout time.Duration `json:"request_timeout"`
}

func getDefaultConfig() *Config {
	return &Config{
		BaseURL:        "https://api.openai.com/v1",
		ModelName:      "gpt-4o-mini",
		RequestTimeout: 120 * time.Second,
	}
}

// Message is one turn in the chat transcript sent to the provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamEvent is one decoded server-sent chunk. Content carries a delta;
// Done marks the terminal event of a completed generation.
type StreamEvent struct {
	Content string
	Done    bool
}

// Client talks to an OpenAI-compatible chat completions endpoint. It is
// stateless apart from the shared HTTP client and safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a generation client. config may be nil for defaults.
func NewClient(config *Config) *Client {
	if config == nil {
		config = getDefaultConfig()
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 120 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		logger:     slog.Default().With("component", "llm-client"),
	}
}

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Tools    []Tool    `json:"tools,omitempty"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// TokenStream is the read side of an in-flight generation. Recv returns
// io.EOF once the stream is exhausted.
type TokenStream interface {
	Recv() (StreamEvent, error)
	Close() error
}

// ChatStream reads decoded events from an in-flight generation. Recv returns
// io.EOF after the terminal event; Close abandons the generation early.
type ChatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// StreamChat starts a streaming chat completion. tools may be nil; when
// supplied, the provider may call them, but tool execution is the caller's
// concern. The returned stream must be closed.
func (c *Client) StreamChat(ctx context.Context, messages []Message, tools []Tool) (*ChatStream, error) {
	if len(messages) == 0 {
		return nil, svcerr.New(svcerr.ErrorTypeInvalidInput, "messages cannot be empty")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    c.config.ModelName,
		Messages: messages,
		Stream:   true,
		Tools:    tools,
	})
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeInternal, "failed to encode chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrorTypeInternal, "failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Generation provider request failed", "error", err)
		return nil, svcerr.Wrap(svcerr.ErrorTypeGenerationUnavailable, "generation service unavailable", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		c.logger.Error("Generation provider returned error status",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return nil, svcerr.Wrap(svcerr.ErrorTypeGenerationUnavailable, "generation service unavailable",
			fmt.Errorf("provider status %d", resp.StatusCode))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	return &ChatStream{body: resp.Body, scanner: scanner}, nil
}

// Recv returns the next event. After a Done event or the provider's [DONE]
// sentinel, Recv returns io.EOF.
func (s *ChatStream) Recv() (StreamEvent, error) {
	if s.done {
		return StreamEvent{}, io.EOF
	}

	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}

		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			s.done = true
			return StreamEvent{}, io.EOF
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return StreamEvent{}, svcerr.Wrap(svcerr.ErrorTypeGenerationUnavailable, "generation service unavailable", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.Delta.Content != "" {
			return StreamEvent{Content: choice.Delta.Content}, nil
		}
		if choice.FinishReason == "stop" {
			s.done = true
			return StreamEvent{Done: true}, nil
		}
	}

	if err := s.scanner.Err(); err != nil {
		return StreamEvent{}, svcerr.Wrap(svcerr.ErrorTypeGenerationUnavailable, "generation stream interrupted", err)
	}

	// Stream ended without the sentinel; treat as exhausted.
	s.done = true
	return StreamEvent{}, io.EOF
}

// Close abandons the stream and releases the connection.
func (s *ChatStream) Close() error {
	return s.body.Close()
}
