package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/snagasuri/deebo-prototype/internal/config"
)

func TestNew_Providers(t *testing.T) {
	tests := []struct {
		provider string
		wantErr  bool
	}{
		{config.ProviderOpenRouter, false},
		{config.ProviderAnthropic, false},
		{config.ProviderOpenAI, false},
		{"carrier-pigeon", true},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			c, err := New(context.Background(), config.AgentConfig{Provider: tt.provider, Model: "m", APIKey: "k"})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(context.Background(), config.AgentConfig{Provider: config.ProviderOpenRouter, Model: "m"})
	assert.Error(t, err)
}

func TestNew_DefaultBaseURLs(t *testing.T) {
	c, err := New(context.Background(), config.AgentConfig{Provider: config.ProviderAnthropic, Model: "claude", APIKey: "k"})
	require.NoError(t, err)
	oc, ok := c.(*openAIClient)
	require.True(t, ok)
	assert.Equal(t, "claude", oc.model)
}

func TestOpenAI_Complete(t *testing.T) {
	var got struct {
		Model     string `json:"model"`
		MaxTokens int    `json:"max_tokens"`
		Messages  []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"<hypothesis>cache</hypothesis>"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), config.AgentConfig{
		Provider: config.ProviderOpenRouter, Model: "test-model", APIKey: "secret",
		BaseURL: srv.URL, MaxTokens: 128,
	})
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleUser, Content: "err"},
		{Role: RoleAssistant, Content: "thinking"},
	})
	require.NoError(t, err)
	assert.Equal(t, "<hypothesis>cache</hypothesis>", out)
	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, 128, got.MaxTokens)
	require.Len(t, got.Messages, 3)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
}

func TestOpenAI_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	c, err := New(context.Background(), config.AgentConfig{Provider: config.ProviderOpenAI, Model: "m", APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: "a"},
		{Role: RoleUser, Content: "b"},
		{Role: RoleSystem, Content: "c"},
		{Role: RoleAssistant, Content: "d"},
	})
	assert.Equal(t, "a\n\nc", system)
	require.Len(t, contents, 2)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "d", contents[1].Parts[0].Text)
}

func TestReplay(t *testing.T) {
	r := NewReplay("one", "two").FailAt(1, errors.New("rate limited"))
	ctx := context.Background()

	out, err := r.Complete(ctx, []Message{{Role: RoleUser, Content: "x"}})
	require.NoError(t, err)
	assert.Equal(t, "one", out)

	_, err = r.Complete(ctx, nil)
	assert.EqualError(t, err, "rate limited")

	out, _ = r.Complete(ctx, nil)
	assert.Equal(t, "two", out)
	out, _ = r.Complete(ctx, nil)
	assert.Equal(t, "two", out, "last turn repeats")
	assert.Len(t, r.Calls(), 4)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = r.Complete(cctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
