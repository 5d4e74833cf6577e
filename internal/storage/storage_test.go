package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUploadKey(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		filename string
		want     string
	}{
		{"plain", "abc", "notes.pdf", "uploads/abc-notes.pdf"},
		{"unix path", "abc", "../../etc/notes.pdf", "uploads/abc-notes.pdf"},
		{"windows path", "abc", `C:\Users\ada\notes.pdf`, "uploads/abc-notes.pdf"},
		{"empty", "abc", "", "uploads/abc-document.pdf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UploadKey(tt.id, tt.filename))
		})
	}
}
