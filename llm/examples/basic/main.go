package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/lgc202/ai-kit/llm"
	"github.com/lgc202/ai-kit/llm/providers/dynamic"
	"github.com/lgc202/ai-kit/manifest"
)

const manifestTmpl = `
version: "1.0.0"
standard_schema:
  parameters:
    temperature: {type: float, range: [0.0, 2.0]}
    max_tokens: {type: integer, min: 1}
providers:
  acme:
    base_url: "%s"
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
      max_tokens: max_tokens
    response_paths:
      id: id
      content: "choices[0].message.content"
      finish_reason: "choices[0].finish_reason"
      usage: usage
models:
  acme-large:
    provider: acme
    model_id: acme-large-001
    context_window: 128000
    capabilities: [chat]
`

func main() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Hello from acme-large."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 6, "total_tokens": 15}
		}`)
	}))
	defer srv.Close()

	man, err := manifest.Parse([]byte(fmt.Sprintf(manifestTmpl, srv.URL)))
	if err != nil {
		panic(err)
	}

	provider, err := dynamic.New(man, "acme", dynamic.WithCredential("demo-key"))
	if err != nil {
		panic(err)
	}
	client := llm.New(provider, llm.WithDefaultModel("acme-large"))

	text, err := client.ChatText(context.Background(), "Say hello.",
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(64),
	)
	if err != nil {
		panic(err)
	}
	fmt.Println("assistant:", text)

	models, err := client.ListModels(context.Background())
	if err != nil {
		panic(err)
	}
	fmt.Println("models:", models)
}
