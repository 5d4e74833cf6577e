package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pdflearn/internal/analysis"
	"pdflearn/internal/config"
)

const (
	promptTextLimit = 4000
	topicMaxTokens  = 1000
	topicTemp       = 0.3
)

var fencedJSON = regexp.MustCompile("(?s)```(?:json)?(.*?)```")

// FallbackTopic stands in for the topic list when the model call or its answer fails.
var FallbackTopic = analysis.Topic{
	Name:        "Error analyzing text",
	Description: "Failed to process document",
	Keywords:    []string{"error"},
}

// ChatCompleter is the subset of the OpenAI-compatible client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// TopicExtractor asks a chat model for the main topics of a text.
type TopicExtractor struct {
	client    ChatCompleter
	model     string
	maxTopics int
	logger    *slog.Logger
}

// NewTopicExtractor builds an extractor against the configured Groq endpoint.
func NewTopicExtractor(cfg config.AnalyzerConfig, logger *slog.Logger) *TopicExtractor {
	oc := openai.DefaultConfig(cfg.GroqAPIKey)
	if cfg.GroqBaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.GroqBaseURL, "/")
	}
	oc.HTTPClient = &http.Client{
		Timeout:   60 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	return NewTopicExtractorWithClient(openai.NewClientWithConfig(oc), cfg.GroqModel, cfg.MaxTopics, logger)
}

// NewTopicExtractorWithClient wires an explicit chat client.
func NewTopicExtractorWithClient(client ChatCompleter, model string, maxTopics int, logger *slog.Logger) *TopicExtractor {
	if maxTopics <= 0 {
		maxTopics = 5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TopicExtractor{
		client:    client,
		model:     model,
		maxTopics: maxTopics,
		logger:    logger.With("component", "topics"),
	}
}

// Topics returns up to maxTopics topics. Model and decoding failures yield FallbackTopic;
// only cancellation of ctx is reported as an error.
func (e *TopicExtractor) Topics(ctx context.Context, text string) ([]analysis.Topic, error) {
	topics, err := e.ask(ctx, text)
	if err == nil {
		return topics, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	e.logger.WarnContext(ctx, "topic_extraction_failed", "error", err.Error())
	return []analysis.Topic{FallbackTopic}, nil
}

func (e *TopicExtractor) ask(ctx context.Context, text string) ([]analysis.Topic, error) {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: topicPrompt(text, e.maxTopics)},
		},
		Temperature: topicTemp,
		MaxTokens:   topicMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: no choices")
	}
	return ParseTopics(resp.Choices[0].Message.Content, e.maxTopics)
}

func topicPrompt(text string, n int) string {
	if r := []rune(text); len(r) > promptTextLimit {
		text = string(r[:promptTextLimit])
	}
	return fmt.Sprintf(`Analyze this text and extract exactly %d main topics. For each topic, provide:
1. Topic name (clear and concise)
2. Brief description (1-2 sentences)
3. Keywords (3-5 relevant search terms)

Text: %s

Format the response as JSON:
{
    "topics": [
        {
            "name": "Topic name",
            "description": "Brief description of the topic",
            "keywords": ["keyword1", "keyword2", "keyword3"]
        }
    ]
}`, n, text)
}

// ExtractJSON returns the body of the first fenced code block, or the trimmed answer when there is none.
func ExtractJSON(answer string) string {
	if m := fencedJSON.FindStringSubmatch(answer); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(answer)
}

// ParseTopics decodes a model answer into at most limit named topics.
func ParseTopics(answer string, limit int) ([]analysis.Topic, error) {
	var body struct {
		Topics []analysis.Topic `json:"topics"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(answer)), &body); err != nil {
		return nil, fmt.Errorf("decode topics: %w", err)
	}

	out := make([]analysis.Topic, 0, len(body.Topics))
	for _, t := range body.Topics {
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	if len(out) == 0 {
		return nil, errors.New("decode topics: no named topics")
	}
	return out, nil
}
