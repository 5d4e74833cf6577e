package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdflearn/internal/model"
)

func TestDecodeStatus(t *testing.T) {
	t.Run("done with one article", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"done","result":{"analysis":{"resources":{"articles":[{"title":"A","url":"u1"}],"videos":[]}}}}`))
		require.NoError(t, err)
		assert.Equal(t, model.JobDone, report.Status)
		require.Len(t, report.Resources, 1)
		assert.Equal(t, "A", report.Resources[0].Title)
		assert.Equal(t, model.CategoryArticle, report.Resources[0].Category)
		assert.Equal(t, 1.0, report.Resources[0].Confidence)
	})

	t.Run("done carries topics and pages", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"DONE","result":{"filename":"notes.pdf","analysis":{
			"pages":3,
			"topics":[{"name":"Go","keywords":["goroutines"]},"Testing"],
			"resources":{}}}}`))
		require.NoError(t, err)
		assert.Equal(t, "notes.pdf", report.Filename)
		assert.Equal(t, 3, report.Pages)
		assert.Equal(t, []Topic{{Name: "Go", Keywords: []string{"goroutines"}}, {Name: "Testing"}}, report.Topics)
		assert.NotNil(t, report.Resources)
		assert.Empty(t, report.Resources)
	})

	t.Run("done without result", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"done"}`))
		require.NoError(t, err)
		assert.Empty(t, report.Resources)
	})

	t.Run("pending", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"pending"}`))
		require.NoError(t, err)
		assert.Equal(t, model.JobPending, report.Status)
		assert.Nil(t, report.Resources)
	})

	t.Run("failed with message", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"failed","error":"could not read PDF"}`))
		require.NoError(t, err)
		assert.Equal(t, model.JobFailed, report.Status)
		assert.Equal(t, "could not read PDF", report.Error)
	})

	t.Run("cancelled with object error", func(t *testing.T) {
		report, err := DecodeStatus([]byte(`{"status":"cancelled","error":{"message":"halted by user"}}`))
		require.NoError(t, err)
		assert.Equal(t, "halted by user", report.Error)
	})

	t.Run("schema violations", func(t *testing.T) {
		for _, body := range []string{
			`not json`,
			`{"status":"running"}`,
			`{}`,
			`{"status":"done","result":{"analysis":{"resources":[1,2]}}}`,
		} {
			_, err := DecodeStatus([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidPayload, body)
		}
	})
}
