package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/ai-gallery/internal/model"
	"github.com/aliskhannn/ai-gallery/internal/provider"
)

func TestMain(m *testing.M) {
	zlog.Init()
	os.Exit(m.Run())
}

func TestSubmit_URL(t *testing.T) {
	var got goopenai.ImageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/images/generations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"data":[{"url":"https://img/1.png","revised_prompt":"a cat, painted"}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "key", "dall-e-3", "1792x1024", 0)
	sub, err := c.Submit(context.Background(), "a cat", model.GenerateOptions{})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if sub.ImageURL != "https://img/1.png" || sub.JobID != "" {
		t.Errorf("submission = %+v", sub)
	}
	if got.Prompt != "a cat" || got.N != 1 || got.Size != "1792x1024" || got.ResponseFormat != "url" {
		t.Errorf("request = %+v", got)
	}
}

func TestSubmit_InlineData(t *testing.T) {
	payload := []byte("not really a png")
	var got goopenai.ImageRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		resp := map[string]any{
			"data": []map[string]string{{"b64_json": base64.StdEncoding.EncodeToString(payload)}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := New(srv.URL+"/v1", "key", "gpt-image-1", "", 0)
	sub, err := c.Submit(context.Background(), "a cat", model.GenerateOptions{Width: 1024, Height: 1024})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if string(sub.ImageData) != string(payload) {
		t.Errorf("ImageData = %q", sub.ImageData)
	}
	if got.ResponseFormat != "" {
		t.Errorf("response_format = %q, want empty for gpt-image models", got.ResponseFormat)
	}
	if got.Size != "1024x1024" {
		t.Errorf("size = %q, want size from options", got.Size)
	}
}

func TestSubmit_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "server error", status: http.StatusInternalServerError, body: `{"error":"boom"}`},
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down","type":"rate_limit"}}`},
		{name: "empty data", status: http.StatusOK, body: `{"data":[]}`},
		{name: "bad base64", status: http.StatusOK, body: `{"data":[{"b64_json":"%%%"}]}`},
		{name: "malformed json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := New(srv.URL+"/v1", "key", "dall-e-3", "", 0)
			_, err := c.Submit(context.Background(), "x", model.GenerateOptions{})
			if !errors.Is(err, provider.ErrRemoteCall) {
				t.Fatalf("error = %v, want ErrRemoteCall", err)
			}
		})
	}
}

func TestStatus_Unsupported(t *testing.T) {
	c := New("http://unused", "key", "dall-e-3", "", 0)
	if _, err := c.Status(context.Background(), "id"); !errors.Is(err, provider.ErrUnsupported) {
		t.Fatalf("error = %v, want ErrUnsupported", err)
	}
}
