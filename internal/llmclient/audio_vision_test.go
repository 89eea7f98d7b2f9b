package llmclient

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

func TestTranscribe_UploadsFetchedAttachmentAndParsesText(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/clip.ogg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fake-audio-bytes")
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, defaultTranscriptionModel, r.FormValue("model"))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		fmt.Fprint(w, `{"text":"hello from the clip"}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	text, err := c.Transcribe(context.Background(), model.Attachment{
		URL:         srv.URL + "/clip.ogg",
		Name:        "clip.ogg",
		ContentType: "audio/ogg",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello from the clip", text)
}

func TestTranscribe_NonTranscriptionStatusIsError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/clip.ogg", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "fake-audio-bytes")
	})
	mux.HandleFunc("/audio/transcriptions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "boom")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, APIKey: "test-key"})
	_, err := c.Transcribe(context.Background(), model.Attachment{URL: srv.URL + "/clip.ogg", Name: "clip.ogg"})
	require.Error(t, err)
}

func TestDescribe_SendsImageURLAndParsesContent(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"a photo of a cat"}}]}`)
	})
	defer closeFn()

	desc, err := c.Describe(context.Background(), model.Attachment{URL: "http://example.test/cat.png", ContentType: "image/png"}, "gpt-vision")
	require.NoError(t, err)
	assert.Equal(t, "a photo of a cat", desc)
}

func TestDescribe_NoChoicesIsError(t *testing.T) {
	c, closeFn := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	})
	defer closeFn()

	_, err := c.Describe(context.Background(), model.Attachment{URL: "http://example.test/cat.png"}, "gpt-vision")
	require.Error(t, err)
}
