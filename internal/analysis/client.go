// Package analysis is the HTTP client of the remote analysis service.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pdflearn/internal/config"
)

// ErrUpstream wraps every non-success answer from the analysis service.
var ErrUpstream = errors.New("analysis service error")

// UpstreamError carries the status code and message of a failed call.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: analysis service returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: analysis service returned %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return ErrUpstream }

// Service is the analysis contract used by the workflow and the resource service.
type Service interface {
	Submit(ctx context.Context, token string, job Job) error
	Status(ctx context.Context, token, correlationID string) (*StatusReport, error)
	Halt(ctx context.Context, token, correlationID string) error
	DeletePDF(ctx context.Context, token, correlationID, filename string) error
}

// Job is one PDF submission.
type Job struct {
	CorrelationID string
	Filename      string
	ContentType   string
	Body          io.Reader
}

// Client talks to the analysis service over HTTP with a bearer credential.
type Client struct {
	base string
	http *http.Client
}

var _ Service = (*Client)(nil)

// NewClient builds a traced client. A nil httpClient gets an otelhttp transport and the configured timeout.
func NewClient(cfg config.AnalysisConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{base: strings.TrimRight(cfg.BaseURL, "/"), http: httpClient}
}

// Submit posts the file and correlation id as multipart form data.
func (c *Client) Submit(ctx context.Context, token string, job Job) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("uuid", job.CorrelationID); err != nil {
		return fmt.Errorf("write uuid field: %w", err)
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, job.Filename))
	ct := job.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, job.Body); err != nil {
		return fmt.Errorf("copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close multipart: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/analyze-pdf", token, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	_, err = c.do(req, "submit")
	return err
}

// Status fetches and decodes the job status.
func (c *Client) Status(ctx context.Context, token, correlationID string) (*StatusReport, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/analyze-pdf-status/"+correlationID, token, nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req, "status")
	if err != nil {
		return nil, err
	}
	return DecodeStatus(body)
}

// Halt asks the service to cancel the job. The terminal state still comes from Status.
func (c *Client) Halt(ctx context.Context, token, correlationID string) error {
	return c.sendJSON(ctx, http.MethodPost, "/api/halt_pdf_process", token, "halt",
		map[string]string{"uuid": correlationID})
}

// DeletePDF asks the service to release the artifacts of a job.
func (c *Client) DeletePDF(ctx context.Context, token, correlationID, filename string) error {
	return c.sendJSON(ctx, http.MethodDelete, "/api/delete-pdf", token, "delete",
		map[string]string{"uuid": correlationID, "filename": filename})
}

func (c *Client) sendJSON(ctx context.Context, method, path, token, op string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	req, err := c.newRequest(ctx, method, path, token, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	_, err = c.do(req, op)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var env struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if json.Unmarshal(body, &env) == nil {
		if msg := errorText(env.Error); msg != "" {
			return msg
		}
		if env.Message != "" {
			return env.Message
		}
		if env.Detail != "" {
			return env.Detail
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
