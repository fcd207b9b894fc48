package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/lgc202/ai-kit/httpx"
	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/llm/providers/dynamic"
	"github.com/lgc202/ai-kit/llm/resilience"
	"github.com/lgc202/ai-kit/llm/routing"
	"github.com/lgc202/ai-kit/manifest"
)

const manifestTmpl = `
version: "1.0.0"
standard_schema:
  parameters:
    temperature: {type: float, range: [0.0, 2.0]}
providers:
  primary:
    base_url: "%s"
    auth: {type: bearer, token_env: PRIMARY_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: "choices[0].message.content"
      finish_reason: "choices[0].finish_reason"
  backup:
    base_url: "%s"
    auth: {type: bearer, token_env: BACKUP_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: "choices[0].message.content"
      finish_reason: "choices[0].finish_reason"
models:
  chat-primary:
    provider: primary
    model_id: chat-001
    context_window: 32000
  chat-backup:
    provider: backup
    model_id: chat-001
    context_window: 32000
`

func main() {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	}))
	defer down.Close()

	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"served by backup"},"finish_reason":"stop"}]}`)
	}))
	defer up.Close()

	man, err := manifest.Parse([]byte(fmt.Sprintf(manifestTmpl, down.URL, up.URL)))
	if err != nil {
		panic(err)
	}

	wrap := func(id, model string) *resilience.Provider {
		p, err := dynamic.New(man, id,
			dynamic.WithCredential("demo-key"),
			dynamic.WithDefaultModel(model),
		)
		if err != nil {
			panic(err)
		}
		return resilience.Wrap(p, resilience.Config{
			Retry: resilience.RetryConfig{
				MaxAttempts: 2,
				Backoff:     httpx.ExponentialBackoff{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond},
			},
			Breaker: resilience.BreakerConfig{FailureThreshold: 3, Cooldown: 10 * time.Second},
		})
	}

	primary := wrap("primary", "chat-primary")
	backup := wrap("backup", "chat-backup")

	route, err := routing.NewFailover([]llm.Provider{primary, backup})
	if err != nil {
		panic(err)
	}
	client := llm.New(route)

	for i := 0; i < 4; i++ {
		text, err := client.ChatText(context.Background(), "Who serves this?")
		if err != nil {
			fmt.Println("call failed:", err)
			continue
		}
		fmt.Printf("call %d: %s\n", i+1, text)
	}

	fmt.Println("primary breaker:", primary.BreakerState())
	fmt.Println("backup breaker:", backup.BreakerState())
}
