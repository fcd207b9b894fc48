package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lgc202/ai-kit/manifest"
	"github.com/lgc202/ai-kit/registry"
)

const manifestV1 = `
version: "1.0.0"
standard_schema:
  parameters:
    temperature: {type: float, range: [0.0, 2.0]}
providers:
  acme:
    base_url: https://api.acme.test/v1
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: "choices[0].message.content"
models:
  acme-large:
    provider: acme
    model_id: acme-large-001
    context_window: 128000
`

const manifestV2 = `
version: "2.0.0"
standard_schema:
  parameters:
    temperature: {type: float, range: [0.0, 2.0]}
providers:
  acme:
    base_url: https://api.acme.test/v1
    auth: {type: bearer, token_env: ACME_API_KEY}
    payload_format: openai_style
    parameter_mappings:
      temperature: temperature
    response_paths:
      content: "choices[0].message.content"
models:
  acme-large:
    provider: acme
    model_id: acme-large-001
    context_window: 128000
  acme-mini:
    provider: acme
    model_id: acme-mini-001
    context_window: 16000
`

func main() {
	dir, err := os.MkdirTemp("", "manifest-demo")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(manifestV1), 0o644); err != nil {
		panic(err)
	}

	reg, err := registry.Load(path)
	if err != nil {
		panic(err)
	}

	swapped := make(chan struct{}, 1)
	w, err := registry.Watch(reg, path,
		registry.WithDebounce(50*time.Millisecond),
		registry.WithOnReload(func(old, new *manifest.Manifest) {
			fmt.Printf("manifest %s -> %s\n", old.Version, new.Version)
			swapped <- struct{}{}
		}),
	)
	if err != nil {
		panic(err)
	}
	defer w.Close()

	fmt.Println("models before:", reg.Models())

	if err := os.WriteFile(path, []byte(manifestV2), 0o644); err != nil {
		panic(err)
	}

	select {
	case <-swapped:
	case <-time.After(5 * time.Second):
		fmt.Println("no reload observed")
		return
	}

	fmt.Println("models after:", reg.Models())
}
