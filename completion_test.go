package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGuess(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    FallbackGuess
		wantErr bool
	}{
		{name: "clean json", content: `{"intent":"confirm","confidence":0.9}`, want: FallbackGuess{Intent: "confirm", Confidence: 0.9}},
		{name: "prose around json", content: "Claro! La respuesta es {\"intent\":\"greet\",\"confidence\":0.7} espero que sirva", want: FallbackGuess{Intent: "greet", Confidence: 0.7}},
		{name: "uppercase intent", content: `{"intent":"CANCEL","confidence":1}`, want: FallbackGuess{Intent: "cancel", Confidence: 1}},
		{name: "no json", content: "no tengo idea", wantErr: true},
		{name: "broken json", content: `{"intent": confirm}`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := parseGuess(tc.content)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, g)
		})
	}
}

func TestCompletionClientHappyPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sekret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"intent\":\"confirm\",\"confidence\":0.8}"}}]}`))
	}))
	defer srv.Close()

	c := &CompletionClient{BaseURL: srv.URL + "/v1", APIKey: "sekret", Model: "test-model"}
	g, err := c.ClassifyFallback(context.Background(), "mandale", StateAwaitingConfirmation)
	require.NoError(t, err)
	assert.Equal(t, "confirm", g.Intent)
	assert.InDelta(t, 0.8, g.Confidence, 1e-9)
}

func TestCompletionClientServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := &CompletionClient{BaseURL: srv.URL, Model: "test-model"}
	_, err := c.ClassifyFallback(context.Background(), "hola", StateIdle)
	assert.Error(t, err)
}

func TestCompletionClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := &CompletionClient{BaseURL: srv.URL, Model: "test-model"}
	_, err := c.ClassifyFallback(context.Background(), "hola", StateIdle)
	assert.Error(t, err)
}
