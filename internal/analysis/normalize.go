package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"pdflearn/internal/model"
)

// RawResources is the grouped resource payload as received. Each group may be absent,
// a single value, or an array.
type RawResources struct {
	Articles json.RawMessage `json:"articles,omitempty"`
	Videos   json.RawMessage `json:"videos,omitempty"`
	Courses  json.RawMessage `json:"courses,omitempty"`
}

func (r RawResources) group(c model.Category) json.RawMessage {
	switch c {
	case model.CategoryArticle:
		return r.Articles
	case model.CategoryVideo:
		return r.Videos
	case model.CategoryCourse:
		return r.Courses
	}
	return nil
}

// Normalize flattens the three groups into one list sorted by confidence, highest first.
// Ties keep encounter order: articles, then videos, then courses. IDs are unique in the result.
func Normalize(raw RawResources) []model.ExtractedResource {
	out := make([]model.ExtractedResource, 0)
	for _, c := range model.Categories {
		for i, item := range coerce(raw.group(c)) {
			if res, ok := toResource(c, i, item); ok {
				out = append(out, res)
			}
		}
	}
	uniqueIDs(out)
	SortByConfidence(out)
	return out
}

// uniqueIDs suffixes repeated ids with #2, #3, ... in encounter order.
func uniqueIDs(list []model.ExtractedResource) {
	seen := make(map[string]bool, len(list))
	for i := range list {
		id := list[i].ID
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s#%d", list[i].ID, n)
		}
		seen[id] = true
		list[i].ID = id
	}
}

// SortByConfidence orders resources by confidence descending, keeping the relative order of ties.
func SortByConfidence(list []model.ExtractedResource) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Confidence > list[j].Confidence
	})
}

// Group is the inverse of Normalize's flattening: it regroups a list by category.
func Group(list []model.ExtractedResource) RawResources {
	buckets := map[model.Category][]model.ExtractedResource{}
	for _, r := range list {
		buckets[r.Category] = append(buckets[r.Category], r)
	}
	enc := func(c model.Category) json.RawMessage {
		items := buckets[c]
		if items == nil {
			items = []model.ExtractedResource{}
		}
		b, _ := json.Marshal(items)
		return b
	}
	return RawResources{
		Articles: enc(model.CategoryArticle),
		Videos:   enc(model.CategoryVideo),
		Courses:  enc(model.CategoryCourse),
	}
}

// coerce collapses absent, null, scalar and array into a list.
func coerce(raw json.RawMessage) []json.RawMessage {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		return items
	}
	return []json.RawMessage{raw}
}

func toResource(c model.Category, index int, raw json.RawMessage) (model.ExtractedResource, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return model.ExtractedResource{}, false
	}

	res := model.ExtractedResource{Category: c, Confidence: 1}
	switch raw[0] {
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return model.ExtractedResource{}, false
		}
		res.Title = text(fields["title"])
		res.URL = text(fields["url"])
		if v, ok := number(fields["confidence"]); ok {
			res.Confidence = v
		} else if v, ok := number(fields["score"]); ok {
			res.Confidence = v
		}
		res.ID = text(fields["id"])
	case '"':
		s := text(raw)
		if strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") {
			res.URL = s
		} else {
			res.Title = s
		}
	default:
		return model.ExtractedResource{}, false
	}

	if res.ID == "" {
		res.ID = res.URL
	}
	if res.ID == "" {
		res.ID = res.Title
	}
	if res.ID == "" {
		res.ID = fmt.Sprintf("%s-%d", c, index)
	}
	if res.Title == "" {
		res.Title = res.URL
	}
	if res.Title == "" {
		res.Title = "Untitled resource"
	}
	res.Confidence = clamp(res.Confidence)
	return res, true
}

// text reads a JSON string or number as text.
func text(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// number reads a JSON number. Strings are not accepted.
func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func clamp(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
