// Package ai wraps an OpenAI-compatible chat completion endpoint as a
// chat participant that always answers with displayable text.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	RoleAssistant = openai.ChatMessageRoleAssistant
	RoleUser      = openai.ChatMessageRoleUser

	DefaultModel        = openai.GPT4oMini
	DefaultTimeout      = 20 * time.Second
	DefaultProbeTimeout = 5 * time.Second

	maxReplyTokens = 500
)

// Fallback replies shown in the room when generation fails.
const (
	FallbackTimeout = "Sorry, I'm taking too long to think right now. Please try asking again in a moment."
	FallbackNetwork = "I'm having trouble reaching my brain right now. Please try again shortly."
	FallbackAuth    = "I'm not configured correctly at the moment, so I can't answer. Please let the room owner know."
	FallbackGeneric = "Sorry, something went wrong while I was working on a reply. Please try again."

	// Unavailable is posted when the service fails its health probe.
	Unavailable = "The AI assistant is currently unavailable. Please try again later."
)

type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	ProbeTimeout time.Duration
}

type Responder struct {
	client       *openai.Client
	model        string
	timeout      time.Duration
	probeTimeout time.Duration
	log          *log.Logger
}

func NewResponder(cfg Config, logger *log.Logger) *Responder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	r := &Responder{
		client:       openai.NewClientWithConfig(clientCfg),
		model:        cfg.Model,
		timeout:      cfg.Timeout,
		probeTimeout: cfg.ProbeTimeout,
		log:          logger,
	}
	if r.model == "" {
		r.model = DefaultModel
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}

	return r
}

func systemPrompt(roomLabel string) string {
	return fmt.Sprintf("You are a friendly AI assistant taking part in the group chat room %q. "+
		"Each message is prefixed with the name of the person who wrote it. "+
		"Keep replies short and conversational, and address people by name when it helps.", roomLabel)
}

// Generate returns the assistant's reply to history. Failures are
// reported as one of the fallback replies, never as an error.
func (r *Responder) Generate(ctx context.Context, history []Turn, roomLabel string) string {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt(roomLabel),
	})
	for _, turn := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    turn.Role,
			Content: turn.Content,
		})
	}

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     r.model,
		Messages:  messages,
		MaxTokens: maxReplyTokens,
	})
	if err != nil {
		r.log.Printf("chat completion for room %q: %v", roomLabel, err)
		return fallbackFor(ctx, err)
	}

	if len(resp.Choices) == 0 {
		r.log.Printf("chat completion for room %q returned no choices", roomLabel)
		return FallbackGeneric
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return FallbackGeneric
	}

	return text
}

// Probe reports whether the completion endpoint is reachable and
// accepts our credentials.
func (r *Responder) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	if _, err := r.client.ListModels(ctx); err != nil {
		r.log.Println("ai probe:", err)
		return false
	}
	return true
}

func fallbackFor(ctx context.Context, err error) string {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return FallbackTimeout
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isAuthStatus(apiErr.HTTPStatusCode) {
		return FallbackAuth
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isAuthStatus(reqErr.HTTPStatusCode) {
		return FallbackAuth
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FallbackTimeout
		}
		return FallbackNetwork
	}

	return FallbackGeneric
}

func isAuthStatus(code int) bool {
	return code == http.StatusUnauthorized || code == http.StatusForbidden
}
