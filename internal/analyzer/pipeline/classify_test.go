package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pdflearn/internal/model"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want model.Category
	}{
		{"https://www.youtube.com/watch?v=abc", model.CategoryVideo},
		{"https://youtu.be/abc", model.CategoryVideo},
		{"https://vimeo.com/123", model.CategoryVideo},
		{"https://www.coursera.org/learn/ml", model.CategoryCourse},
		{"https://www.udemy.com/topic/python", model.CategoryCourse},
		{"https://example.com/free-course/intro", model.CategoryCourse},
		{"https://medium.com/@a/post", model.CategoryArticle},
		{"https://notyoutube.com/watch", model.CategoryArticle},
		{"::not a url", model.CategoryArticle},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.url))
		})
	}
}

func TestRank(t *testing.T) {
	in := []SearchResult{
		{URL: "a", Score: 0.2},
		{URL: "b", Score: 0.9},
		{URL: "a", Score: 0.5, Topic: "second"},
		{URL: "c", Score: 0.9},
		{URL: "d", Score: 0.1},
	}
	out := Rank(in, 3)
	assert.Equal(t, []string{"b", "c", "a"}, urls(out))
	assert.Equal(t, "second", out[2].Topic)

	assert.Len(t, Rank(in, 0), 4)
	assert.Empty(t, Rank(nil, 10))
}

func urls(rs []SearchResult) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.URL
	}
	return out
}
