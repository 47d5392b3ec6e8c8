// Package assistant implements the auto-responder behind the assistant
// account: when a user messages it, the reply text is produced by an
// OpenAI-compatible chat completion API and returned as display-sized
// chunks for paced delivery.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxChunkRunes is the largest reply fragment handed back to the delivery
// core. Long completions are split so each outbound frame stays readable.
const MaxChunkRunes = 600

// Responder produces the assistant's reply to one inbound message,
// pre-split into delivery chunks.
type Responder interface {
	Reply(ctx context.Context, text string) ([]string, error)
}

// Completer asks an OpenAI-compatible endpoint for a single-turn chat
// completion.
type Completer struct {
	apiKey  string
	apiBase string
	model   string
	system  string
	client  *http.Client
}

// CompleterConfig configures a Completer. Zero values fall back to the
// public OpenAI endpoint and a small default model.
type CompleterConfig struct {
	APIKey  string
	APIBase string
	Model   string
	System  string
}

// NewCompleter constructs a Completer from cfg.
func NewCompleter(cfg CompleterConfig) *Completer {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.System == "" {
		cfg.System = "You are a helpful assistant inside a private messaging app. Keep answers short and conversational."
	}
	return &Completer{
		apiKey:  cfg.APIKey,
		apiBase: cfg.APIBase,
		model:   cfg.Model,
		system:  cfg.System,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Reply sends text as a single user turn and chunks the completion. An
// empty completion yields no chunks and no error.
func (c *Completer) Reply(ctx context.Context, text string) ([]string, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.system},
			{Role: "user", Content: text},
		},
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("assistant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assistant %d: %s", resp.StatusCode, string(respBody))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, nil
	}
	return Chunk(out.Choices[0].Message.Content, MaxChunkRunes), nil
}

// Chunk splits text into fragments of at most max runes, preferring to
// break on whitespace. Blank input returns nil.
func Chunk(text string, max int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return []string{text}
	}

	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= max {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}
		cut := max
		for i := max; i > max/2; i-- {
			if runes[i-1] == ' ' || runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		piece := strings.TrimSpace(string(runes[:cut]))
		if piece != "" {
			chunks = append(chunks, piece)
		}
		runes = runes[cut:]
	}
	return chunks
}
