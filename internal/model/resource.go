package model

// Category is the fixed set of learning resource kinds.
type Category string

const (
	CategoryArticle Category = "article"
	CategoryVideo   Category = "video"
	CategoryCourse  Category = "course"
)

// Categories lists every category in encounter order: articles, then videos, then courses.
var Categories = []Category{CategoryArticle, CategoryVideo, CategoryCourse}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryArticle, CategoryVideo, CategoryCourse:
		return true
	}
	return false
}

// ExtractedResource is a candidate learning resource produced by one analysis.
// It is transient until selected and saved.
type ExtractedResource struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Category   Category `json:"category"`
	URL        string   `json:"url"`
	Confidence float64  `json:"confidence"`
}
