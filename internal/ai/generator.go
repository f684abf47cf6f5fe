// Package ai drafts campaign emails with the OpenAI chat completions API.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/nhle/campaignbot/internal/source"
)

const (
	defaultModel     = "gpt-4o"
	defaultMaxTokens = 4096
)

// Generator implements source.DraftGenerator.
type Generator struct {
	client    openai.Client
	model     string
	maxTokens int
}

// New creates a generator. Extra request options (such as
// option.WithBaseURL) are applied after the API key. The client never
// retries on its own.
func New(apiKey, modelName string, maxTokens int, opts ...option.RequestOption) *Generator {
	if modelName == "" {
		modelName = defaultModel
	}
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	reqOpts := append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)

	return &Generator{
		client:    openai.NewClient(reqOpts...),
		model:     modelName,
		maxTokens: maxTokens,
	}
}

// Generate asks the model for a complete HTML email and returns it with
// any surrounding chatter removed.
func (g *Generator) Generate(ctx context.Context, req source.DraftRequest) (string, error) {
	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
		MaxTokens: openai.Int(int64(g.maxTokens)),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return "", &source.AuthError{Service: source.ServiceOpenAI, Message: apiErr.Message}
		}
		return "", fmt.Errorf("generating draft: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("generating draft: model returned no choices")
	}

	html := CleanHTML(resp.Choices[0].Message.Content)
	if html == "" {
		return "", errors.New("generating draft: model returned no HTML")
	}
	return html, nil
}

// CleanHTML removes markdown fences and any leading prose before the
// document starts.
func CleanHTML(content string) string {
	content = strings.TrimSpace(content)

	if _, after, ok := strings.Cut(content, "```html"); ok {
		content = after
	} else if _, after, ok := strings.Cut(content, "```"); ok {
		content = after
	}
	if before, _, ok := strings.Cut(content, "```"); ok {
		content = before
	}

	for _, marker := range []string{"<!doctype", "<html", "<div"} {
		if i := indexFold(content, marker); i >= 0 {
			content = content[i:]
			break
		}
	}

	return strings.TrimSpace(content)
}

// indexFold is strings.Index with ASCII case folding of an ASCII marker.
func indexFold(s, marker string) int {
	for i := 0; i+len(marker) <= len(s); i++ {
		if strings.EqualFold(s[i:i+len(marker)], marker) {
			return i
		}
	}
	return -1
}
