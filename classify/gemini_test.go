package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGeminiClient_Configured(t *testing.T) {
	assert.False(t, NewGeminiClient("").Configured())
	assert.True(t, NewGeminiClient("key").Configured())
}

func TestGeminiClient_Classify(t *testing.T) {
	var deleted atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "raw", r.Header.Get("X-Goog-Upload-Protocol"))
		assert.Equal(t, "key", r.URL.Query().Get("key"))
		_ = json.NewEncoder(w).Encode(uploadResponse{File: uploadedFile{
			Name: "files/abc123",
			URI:  "https://example.test/files/abc123",
		}})
	})
	mux.HandleFunc("/v1beta/models/gemini-2.0-flash-exp:generateContent", func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if assert.Len(t, req.Contents, 1) && assert.Len(t, req.Contents[0].Parts, 2) {
			assert.Equal(t, ClassifyPrompt, req.Contents[0].Parts[0].Text)
			assert.Equal(t, "image/jpeg", req.Contents[0].Parts[1].FileData.MimeType)
		}
		assert.Equal(t, float32(0.4), req.GenerationConfig.Temperature)
		assert.Equal(t, 1024, req.GenerationConfig.MaxOutputTokens)

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Recyclable: Plastic Bottle. Clean plastic can be recycled."}]}}]}`))
	})
	mux.HandleFunc("/v1beta/files/abc123", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		deleted.Add(1)
		w.WriteHeader(http.StatusOK)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGeminiClient("key")
	g.SetEndpoint(srv.URL)

	text, err := g.Classify(context.Background(), []byte("jpegdata"), ClassifyPrompt, []string{"gemini-2.0-flash-exp"})
	assert.NoError(t, err)
	assert.Equal(t, "Recyclable: Plastic Bottle. Clean plastic can be recycled.", text)
	assert.Equal(t, int32(1), deleted.Load())
}

func TestGeminiClient_Classify_ModelFallthrough(t *testing.T) {
	var deleted atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/upload/v1beta/files", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(uploadResponse{File: uploadedFile{
			Name: "files/xyz",
			URI:  "https://example.test/files/xyz",
		}})
	})
	mux.HandleFunc("/v1beta/models/broken-model:generateContent", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/v1beta/models/working-model:generateContent", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Non-Recyclable: Styrofoam Cup. Cannot be recycled."}]}}]}`))
	})
	mux.HandleFunc("/v1beta/files/xyz", func(w http.ResponseWriter, r *http.Request) {
		deleted.Add(1)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGeminiClient("key")
	g.SetEndpoint(srv.URL)

	text, err := g.Classify(context.Background(), []byte("jpegdata"), ClassifyPrompt,
		[]string{"broken-model", "working-model"})
	assert.NoError(t, err)
	assert.Equal(t, "Non-Recyclable: Styrofoam Cup. Cannot be recycled.", text)
	// Each attempt uploads and must clean up, including the failed one.
	assert.Equal(t, int32(2), deleted.Load())
}

func TestGeminiClient_Classify_AllFail(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGeminiClient("key")
	g.SetEndpoint(srv.URL)

	_, err := g.Classify(context.Background(), []byte("jpegdata"), ClassifyPrompt, DefaultCloudModels)
	assert.Error(t, err)
}

func TestGeminiClient_Classify_NoKey(t *testing.T) {
	g := NewGeminiClient("")
	_, err := g.Classify(context.Background(), []byte("jpegdata"), ClassifyPrompt, DefaultCloudModels)
	assert.Error(t, err)
}
