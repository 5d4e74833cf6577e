package pipeline

import (
	"net/url"
	"sort"
	"strings"

	"pdflearn/internal/model"
)

var (
	videoHosts  = []string{"youtube.com", "youtu.be", "vimeo.com"}
	courseHosts = []string{"coursera.org", "udemy.com", "edx.org", "khanacademy.org"}
)

// Classify assigns a category from the result URL. Anything that is neither a video
// nor a course is an article.
func Classify(rawURL string) model.Category {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return model.CategoryArticle
	}
	host := strings.ToLower(u.Hostname())
	if hostIn(host, videoHosts) {
		return model.CategoryVideo
	}
	if hostIn(host, courseHosts) || strings.Contains(strings.ToLower(u.Path), "course") {
		return model.CategoryCourse
	}
	return model.CategoryArticle
}

func hostIn(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Rank drops duplicate URLs, keeping the best score, and returns the n highest scored results.
// Equal scores keep their input order.
func Rank(results []SearchResult, n int) []SearchResult {
	best := make(map[string]int, len(results))
	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		if i, ok := best[r.URL]; ok {
			if r.Score > out[i].Score {
				out[i] = r
			}
			continue
		}
		best[r.URL] = len(out)
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
