package analysis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"pdflearn/internal/model"
)

// ErrInvalidPayload is returned when a status response does not match the expected schema.
var ErrInvalidPayload = errors.New("invalid analysis status payload")

// Topic is one subject the analysis identified.
type Topic struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// StatusReport is the typed result of DecodeStatus.
type StatusReport struct {
	Status    model.JobStatus           `json:"status"`
	Error     string                    `json:"error,omitempty"`
	Filename  string                    `json:"filename,omitempty"`
	Pages     int                       `json:"pages,omitempty"`
	Topics    []Topic                   `json:"topics,omitempty"`
	Resources []model.ExtractedResource `json:"resources"`
}

type statusEnvelope struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  json.RawMessage `json:"error"`
}

type resultEnvelope struct {
	Filename string `json:"filename"`
	Analysis struct {
		Pages     json.RawMessage `json:"pages"`
		Topics    json.RawMessage `json:"topics"`
		Resources RawResources    `json:"resources"`
	} `json:"analysis"`
}

// DecodeStatus validates a status payload and produces a StatusReport.
// A done job always carries a (possibly empty) normalized resource list.
func DecodeStatus(data []byte) (*StatusReport, error) {
	var env statusEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	status := model.JobStatus(strings.ToLower(strings.TrimSpace(env.Status)))
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidPayload, env.Status)
	}

	report := &StatusReport{Status: status, Error: errorText(env.Error)}
	if status != model.JobDone {
		return report, nil
	}

	report.Resources = []model.ExtractedResource{}
	body := bytes.TrimSpace(env.Result)
	if len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return report, nil
	}
	var res resultEnvelope
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("%w: result: %v", ErrInvalidPayload, err)
	}
	report.Filename = res.Filename
	if v, ok := number(res.Analysis.Pages); ok {
		report.Pages = int(v)
	} else {
		var pages []json.RawMessage
		if json.Unmarshal(res.Analysis.Pages, &pages) == nil {
			report.Pages = len(pages)
		}
	}
	report.Topics = decodeTopics(res.Analysis.Topics)
	report.Resources = Normalize(res.Analysis.Resources)
	return report, nil
}

func decodeTopics(raw json.RawMessage) []Topic {
	var out []Topic
	for _, item := range coerce(raw) {
		var t Topic
		if json.Unmarshal(item, &t) == nil && t.Name != "" {
			out = append(out, t)
			continue
		}
		if name := text(item); name != "" {
			out = append(out, Topic{Name: name})
		}
	}
	return out
}

// errorText accepts a string, an object with a message, or any other JSON value.
func errorText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	if s := text(raw); s != "" {
		return s
	}
	var obj struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Detail != "" {
			return obj.Detail
		}
	}
	return string(raw)
}
