package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const systemPrompt = "You are a helpful assistant that extracts the title, authors, and tags from article content."

const userPromptFormat = `Extract the title, authors, and tags from this article content:

%s

Respond with a single JSON object with exactly these string keys: "title", "authors", "tags". Authors and tags are comma-separated lists; use an empty string when none can be determined. Do not include any other text.`

var (
	errEmptyCompletion   = errors.New("model returned an empty completion")
	errMissingField      = errors.New("model output is missing a field")
	errEmptyTitle        = errors.New("model returned an empty title")
	errMalformedResponse = errors.New("model output is not a JSON object")
)

// completer produces a chat completion for a fixed system/user prompt pair.
type completer interface {
	complete(ctx context.Context, system, user string) (string, error)
}

// metadata is what the model extracts from an article.
type metadata struct {
	title   string
	authors string
	tags    string
}

// extractMetadata asks the model for the article's title, authors and tags.
// The model is instructed to reply with a JSON object carrying all three
// keys; a reply missing any of them, or with an empty title, is rejected
// rather than papered over with blank fields.
func extractMetadata(ctx context.Context, llm completer, content string) (metadata, error) {
	reply, err := llm.complete(ctx, systemPrompt, fmt.Sprintf(userPromptFormat, content))
	if err != nil {
		return metadata{}, err
	}
	return parseMetadata(reply)
}

func parseMetadata(reply string) (metadata, error) {
	reply = stripCodeFence(strings.TrimSpace(reply))
	if reply == "" {
		return metadata{}, errEmptyCompletion
	}

	var parsed struct {
		Title   *string `json:"title"`
		Authors *string `json:"authors"`
		Tags    *string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		return metadata{}, fmt.Errorf("%w: %v", errMalformedResponse, err)
	}

	for field, val := range map[string]*string{
		"title":   parsed.Title,
		"authors": parsed.Authors,
		"tags":    parsed.Tags,
	} {
		if val == nil {
			return metadata{}, fmt.Errorf("%w: %s", errMissingField, field)
		}
	}

	m := metadata{
		title:   strings.TrimSpace(*parsed.Title),
		authors: strings.TrimSpace(*parsed.Authors),
		tags:    strings.TrimSpace(*parsed.Tags),
	}
	if m.title == "" {
		return metadata{}, errEmptyTitle
	}
	return m, nil
}

// stripCodeFence removes a Markdown code fence wrapping, which models add
// around JSON despite instructions not to.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// openaiLLM implements completer on top of the OpenAI chat completions API.
type openaiLLM struct {
	client openai.Client
	model  string
}

func newOpenaiLLM(model string, opts ...option.RequestOption) *openaiLLM {
	return &openaiLLM{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

func (o *openaiLLM) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(o.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens:   openai.Int(150),
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
