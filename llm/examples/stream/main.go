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
providers:
  acme:
    base_url: "%s"
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: "choices[0].message.content"
      finish_reason: "choices[0].finish_reason"
    streaming:
      decoder: {format: sse, prefix: "data: ", done_signal: "[DONE]"}
      event_map:
        - match: "exists(choices[0].delta.content) && choices[0].delta.content != null"
          emit: PartialContentDelta
          fields:
            content: "choices[0].delta.content"
            choice_index: "choices[0].index"
        - match: "choices[0].finish_reason != null"
          emit: Finish
          fields:
            finish_reason: "choices[0].finish_reason"
            usage: usage
models:
  acme-large:
    provider: acme
    model_id: acme-large-001
    context_window: 128000
    capabilities: [chat, streaming]
`

func main() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"choices":[{"index":0,"delta":{"content":"Streaming "}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"works."}}]}`,
			`{"choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":4,"completion_tokens":3,"total_tokens":7}}`,
		}
		for _, c := range chunks {
			_, _ = io.WriteString(w, "data: "+c+"\n\n")
		}
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
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

	req := llm.BuildChatRequest("", []llm.Message{llm.User("Stream a reply.")})
	stream, err := client.ChatStream(context.Background(), req)
	if err != nil {
		panic(err)
	}
	defer stream.Close()

	var acc llm.Accumulator
	for {
		ev, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			panic(err)
		}
		acc.Apply(ev)
		if ev.Kind == llm.StreamEventPartDelta && ev.PartDelta != nil {
			fmt.Print(ev.PartDelta.TextDelta)
		}
		if ev.Done() {
			break
		}
	}
	fmt.Println()

	final := acc.FinalResponse()
	fmt.Println("finish:", final.Choices[0].FinishReason)
	if final.Usage != nil {
		fmt.Println("tokens:", final.Usage.TotalTokens)
	}
}
