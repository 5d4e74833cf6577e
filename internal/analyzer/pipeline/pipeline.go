package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"pdflearn/internal/analysis"
	"pdflearn/internal/model"
)

// ErrHalted is returned when a halt was requested between stages.
var ErrHalted = errors.New("analysis halted")

// SearchFailedTopic replaces the topic names when no resource could be searched.
const SearchFailedTopic = "Error searching resources"

// Stage names reported to the observer.
const (
	StageExtract = "extract"
	StageTopics  = "topics"
	StageSearch  = "search"
)

// TopicSource finds the main topics of a text.
type TopicSource interface {
	Topics(ctx context.Context, text string) ([]analysis.Topic, error)
}

// ResourceSearch finds learning resources for topics.
type ResourceSearch interface {
	Search(ctx context.Context, topics []analysis.Topic) ([]SearchResult, error)
}

// HaltFunc reports whether the job was asked to stop.
type HaltFunc func(ctx context.Context) (bool, error)

// Resource is one grouped learning resource in a result.
type Resource struct {
	ID       string         `json:"id"`
	Title    string         `json:"title"`
	URL      string         `json:"url"`
	Content  string         `json:"content,omitempty"`
	Score    float64        `json:"score"`
	Topic    string         `json:"topic"`
	Category model.Category `json:"type"`
}

// Resources groups the ranked results by category.
type Resources struct {
	Articles []Resource `json:"articles"`
	Videos   []Resource `json:"videos"`
	Courses  []Resource `json:"courses"`
	Topics   []string   `json:"topics"`
}

// Analysis is the body of a finished job.
type Analysis struct {
	Text      string           `json:"text"`
	Pages     int              `json:"pages"`
	Topics    []analysis.Topic `json:"topics"`
	Resources Resources        `json:"resources"`
}

// Result is stored as the job result and served by the status endpoint.
type Result struct {
	Filename string   `json:"filename"`
	Analysis Analysis `json:"analysis"`
}

// Pipeline runs extraction, topic analysis and resource search in order.
type Pipeline struct {
	Topics TopicSource
	Search ResourceSearch
	// TopN caps the number of resources kept across all topics.
	TopN int
	// OnStage, when set, receives the duration of each completed stage.
	OnStage func(stage string, elapsed time.Duration)
	Logger  *slog.Logger
}

// Run analyses data. halted is consulted before every stage.
func (p *Pipeline) Run(ctx context.Context, filename string, data []byte, halted HaltFunc) (*Result, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	check := func() error {
		if halted == nil {
			return nil
		}
		stop, err := halted(ctx)
		if err != nil {
			return fmt.Errorf("check halt: %w", err)
		}
		if stop {
			return ErrHalted
		}
		return nil
	}

	if err := check(); err != nil {
		return nil, err
	}
	start := time.Now()
	doc, err := ExtractBytes(data)
	if err != nil {
		return nil, fmt.Errorf("extract text: %w", err)
	}
	p.observe(StageExtract, start)

	if err := check(); err != nil {
		return nil, err
	}
	start = time.Now()
	topics, err := p.Topics.Topics(ctx, doc.Text)
	if err != nil {
		return nil, fmt.Errorf("find topics: %w", err)
	}
	p.observe(StageTopics, start)

	if err := check(); err != nil {
		return nil, err
	}
	start = time.Now()
	resources, err := p.resources(ctx, topics)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.WarnContext(ctx, "resource_search_failed", "error", err.Error())
		resources = Resources{
			Articles: []Resource{},
			Videos:   []Resource{},
			Courses:  []Resource{},
			Topics:   []string{SearchFailedTopic},
		}
	}
	p.observe(StageSearch, start)

	if err := check(); err != nil {
		return nil, err
	}
	return &Result{
		Filename: filename,
		Analysis: Analysis{
			Text:      doc.Text,
			Pages:     doc.Pages,
			Topics:    topics,
			Resources: resources,
		},
	}, nil
}

func (p *Pipeline) resources(ctx context.Context, topics []analysis.Topic) (Resources, error) {
	hits, err := p.Search.Search(ctx, topics)
	if err != nil {
		return Resources{}, err
	}
	out := Resources{
		Articles: []Resource{},
		Videos:   []Resource{},
		Courses:  []Resource{},
		Topics:   make([]string, 0, len(topics)),
	}
	for _, t := range topics {
		out.Topics = append(out.Topics, t.Name)
	}
	for _, h := range Rank(hits, p.TopN) {
		r := Resource{
			ID:       h.URL,
			Title:    h.Title,
			URL:      h.URL,
			Content:  h.Content,
			Score:    h.Score,
			Topic:    h.Topic,
			Category: Classify(h.URL),
		}
		switch r.Category {
		case model.CategoryVideo:
			out.Videos = append(out.Videos, r)
		case model.CategoryCourse:
			out.Courses = append(out.Courses, r)
		default:
			out.Articles = append(out.Articles, r)
		}
	}
	return out, nil
}

func (p *Pipeline) observe(stage string, start time.Time) {
	if p.OnStage != nil {
		p.OnStage(stage, time.Since(start))
	}
}
