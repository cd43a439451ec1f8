package categorize

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chatServer(t *testing.T, reply string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Zero(t, req.Temperature)
		require.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": reply}},
			},
		})
	}))
}

func TestLLMCategorize(t *testing.T) {
	srv := chatServer(t, `{"categories": ["food", "preferences"]}`, http.StatusOK)
	defer srv.Close()

	l := NewLLM(srv.URL, "test-key", "test-model")
	got, err := l.Categorize(context.Background(), "likes black coffee")
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "preferences"}, got)
}

func TestLLMCategorizeFencedJSON(t *testing.T) {
	srv := chatServer(t, "```json\n{\"categories\": [\"work\"]}\n```", http.StatusOK)
	defer srv.Close()

	l := NewLLM(srv.URL, "k", "m")
	got, err := l.Categorize(context.Background(), "meeting notes")
	require.NoError(t, err)
	assert.Equal(t, []string{"work"}, got)
}

func TestLLMCategorizeFiltersUnknownNames(t *testing.T) {
	srv := chatServer(t, `{"categories": ["Food", "made-up", "food"]}`, http.StatusOK)
	defer srv.Close()

	l := NewLLM(srv.URL, "k", "m")
	got, err := l.Categorize(context.Background(), "pizza")
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, got)
}

func TestFallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := &Fallback{
		Primary:   NewLLM(srv.URL, "k", "m"),
		Secondary: Keyword{},
		Log:       zerolog.Nop(),
	}
	got, err := f.Categorize(context.Background(), "likes coffee")
	require.NoError(t, err)
	assert.Equal(t, []string{"food", "preferences"}, got)
}

func TestFallbackOnEmptyPrimaryResult(t *testing.T) {
	srv := chatServer(t, `{"categories": []}`, http.StatusOK)
	defer srv.Close()

	f := &Fallback{
		Primary:   NewLLM(srv.URL, "k", "m"),
		Secondary: Keyword{},
		Log:       zerolog.Nop(),
	}
	got, err := f.Categorize(context.Background(), "unclassifiable gibberish")
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, got)
}
