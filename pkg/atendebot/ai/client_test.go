package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.APIKey = "test-key"
	cfg.Model = "test-model"
	cfg.SystemPrompt = "Responda como a Chácara da Paz: ${userMessage}"
	return NewClient(cfg, nil)
}

func completionResponse(text string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` +
		mustJSON(text) + `},"finish_reason":"stop"}]}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateReply(t *testing.T) {
	t.Run("substitutes the user message into the prompt", func(t *testing.T) {
		var gotPrompt string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decoding request: %v", err)
			}
			gotPrompt = req.Messages[0].Content
			w.Write([]byte(completionResponse("  olá!  ")))
		})

		reply, err := client.GenerateReply(context.Background(), "tem piscina?")
		if err != nil {
			t.Fatalf("GenerateReply: %v", err)
		}
		if reply != "olá!" {
			t.Errorf("reply not trimmed: %q", reply)
		}
		if !strings.Contains(gotPrompt, "tem piscina?") {
			t.Errorf("user message not substituted: %q", gotPrompt)
		}
		if strings.Contains(gotPrompt, "${userMessage}") {
			t.Errorf("placeholder left in prompt: %q", gotPrompt)
		}
	})

	t.Run("sends bearer auth and model", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("missing bearer token, got %q", got)
			}
			var req chatRequest
			json.NewDecoder(r.Body).Decode(&req)
			if req.Model != "test-model" {
				t.Errorf("wrong model: %q", req.Model)
			}
			w.Write([]byte(completionResponse("ok")))
		})
		if _, err := client.GenerateReply(context.Background(), "oi"); err != nil {
			t.Fatalf("GenerateReply: %v", err)
		}
	})

	t.Run("prompt hot reload applies to the next call", func(t *testing.T) {
		var gotPrompt string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var req chatRequest
			json.NewDecoder(r.Body).Decode(&req)
			gotPrompt = req.Messages[0].Content
			w.Write([]byte(completionResponse("ok")))
		})

		client.UpdatePrompt("Novo contexto: ${userMessage}")
		if _, err := client.GenerateReply(context.Background(), "oi"); err != nil {
			t.Fatalf("GenerateReply: %v", err)
		}
		if !strings.HasPrefix(gotPrompt, "Novo contexto:") {
			t.Errorf("updated prompt not used: %q", gotPrompt)
		}
	})
}

func TestErrorClassification(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, ErrRateLimited},
		{"forbidden", http.StatusForbidden, ErrContentFiltered},
		{"unauthorized", http.StatusUnauthorized, ErrContentFiltered},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := client.GenerateReply(context.Background(), "oi")
			if !errors.Is(err, tc.want) {
				t.Errorf("status %d: expected %v, got %v", tc.status, tc.want, err)
			}
		})
	}

	t.Run("unknown status stays unclassified", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})
		_, err := client.GenerateReply(context.Background(), "oi")
		if err == nil {
			t.Fatal("expected an error")
		}
		for _, sentinel := range []error{ErrRateLimited, ErrContentFiltered, ErrUnavailable} {
			if errors.Is(err, sentinel) {
				t.Errorf("teapot wrongly classified as %v", sentinel)
			}
		}
	})

	t.Run("network failure maps to unavailable", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.BaseURL = "http://127.0.0.1:1" // nothing listens here
		client := NewClient(cfg, nil)

		_, err := client.GenerateReply(context.Background(), "oi")
		if !errors.Is(err, ErrUnavailable) {
			t.Errorf("expected ErrUnavailable, got %v", err)
		}
	})

	t.Run("content filter finish reason", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":""},"finish_reason":"content_filter"}]}`))
		})
		_, err := client.GenerateReply(context.Background(), "oi")
		if !errors.Is(err, ErrContentFiltered) {
			t.Errorf("expected ErrContentFiltered, got %v", err)
		}
	})
}
