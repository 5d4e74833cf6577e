package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"pdflearn/internal/analysis"
	"pdflearn/internal/config"
)

const searchParallelism = 3

// SearchResult is one hit returned for a topic.
type SearchResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content,omitempty"`
	Score   float64 `json:"score"`
	Topic   string  `json:"topic"`
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResponse struct {
	Results []SearchResult `json:"results"`
}

// Searcher queries the Tavily search API once per topic.
type Searcher struct {
	url        string
	key        string
	domains    []string
	maxResults int
	http       *http.Client
	logger     *slog.Logger
}

// NewSearcher builds a traced search client. A nil httpClient gets an otelhttp transport.
func NewSearcher(cfg config.AnalyzerConfig, httpClient *http.Client, logger *slog.Logger) *Searcher {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	n := cfg.ResultsPerTopic
	if n <= 0 {
		n = 3
	}
	return &Searcher{
		url:        cfg.TavilyURL,
		key:        cfg.TavilyAPIKey,
		domains:    cfg.IncludeDomains,
		maxResults: n,
		http:       httpClient,
		logger:     logger.With("component", "search"),
	}
}

// Query is the search phrase for a topic: its name followed by its keywords.
func Query(t analysis.Topic) string {
	return strings.TrimSpace(t.Name + " " + strings.Join(t.Keywords, " "))
}

// Search runs one query per topic. A topic whose search fails contributes nothing;
// results keep topic order, then the order the API returned them in.
func (s *Searcher) Search(ctx context.Context, topics []analysis.Topic) ([]SearchResult, error) {
	perTopic := make([][]SearchResult, len(topics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchParallelism)
	for i, t := range topics {
		g.Go(func() error {
			res, err := s.searchTopic(gctx, t)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.WarnContext(gctx, "topic_search_failed", "topic", t.Name, "error", err.Error())
				return nil
			}
			perTopic[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0)
	for _, res := range perTopic {
		out = append(out, res...)
	}
	return out, nil
}

func (s *Searcher) searchTopic(ctx context.Context, t analysis.Topic) ([]SearchResult, error) {
	body, err := json.Marshal(searchRequest{
		Query:          Query(t),
		SearchDepth:    "advanced",
		MaxResults:     s.maxResults,
		IncludeDomains: s.domains,
	})
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.key)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("search: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}
	var sr searchResponse
	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("search: decode: %w", err)
	}
	out := make([]SearchResult, 0, len(sr.Results))
	for _, r := range sr.Results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		r.Topic = t.Name
		out = append(out, r)
	}
	return out, nil
}
