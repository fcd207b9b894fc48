package manifest

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidationError aggregates every problem found in a document. Loading is
// all-or-nothing: a manifest with any problem is rejected as a whole, and
// the error lists each unresolved reference and malformed field.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	switch len(e.Problems) {
	case 0:
		return "manifest validation failed"
	case 1:
		return "invalid manifest: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid manifest: %d problems:\n  - %s",
		len(e.Problems), strings.Join(e.Problems, "\n  - "))
}

// Load reads, parses, and validates the manifest document at path.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return m, nil
}

//go:embed default.yaml
var defaultManifest []byte

// Default returns the manifest bundled with the library, covering the
// common hosted providers. It is a starting point, not a requirement:
// any document passing Parse works.
func Default() (*Manifest, error) {
	return Parse(defaultManifest)
}

// Parse decodes and validates a manifest document. On success the returned
// Manifest is fully resolved: match expressions and string patterns are
// compiled, model→provider references checked, defaults normalized. There is
// no partially valid result.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	normalize(&m)
	if err := validate(&m); err != nil {
		return nil, err
	}
	return &m, nil
}

func normalize(m *Manifest) {
	m.Version = strings.TrimSpace(m.Version)
	for _, p := range m.StandardSchema.Parameters {
		if p == nil {
			continue
		}
		p.Type = ParamType(strings.ToLower(string(p.Type)))
		if p.Type == "bool" {
			p.Type = ParamBool
		}
	}
	for _, model := range m.Models {
		if model != nil && model.Status == "" {
			model.Status = StatusActive
		}
	}
}

type problems struct {
	list []string
}

func (p *problems) addf(format string, args ...any) {
	p.list = append(p.list, fmt.Sprintf(format, args...))
}

var templateVar = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// validate collects every problem before failing, so one load reports the
// whole document's damage. It also compiles expressions and patterns into
// the structures it validated.
func validate(m *Manifest) error {
	var errs problems

	if m.Version == "" {
		errs.addf("version: required")
	}

	for _, name := range sortedKeys(m.StandardSchema.Parameters) {
		validateParameter(&errs, name, m.StandardSchema.Parameters[name])
	}
	for _, id := range sortedKeys(m.Providers) {
		validateProvider(&errs, id, m.Providers[id])
	}
	for _, id := range sortedKeys(m.Models) {
		validateModel(&errs, id, m.Models[id], m.Providers)
	}

	if len(errs.list) > 0 {
		return &ValidationError{Problems: errs.list}
	}
	return nil
}

func validateParameter(errs *problems, name string, p *Parameter) {
	if p == nil {
		errs.addf("standard_schema.parameters.%s: empty definition", name)
		return
	}
	switch p.Type {
	case ParamString, ParamInteger, ParamFloat, ParamBool, ParamArray, ParamObject:
	default:
		errs.addf("standard_schema.parameters.%s: unknown type %q", name, p.Type)
	}
	if n := len(p.Range); n != 0 && n != 2 {
		errs.addf("standard_schema.parameters.%s: range must be [lo, hi]", name)
	} else if n == 2 && p.Range[0] > p.Range[1] {
		errs.addf("standard_schema.parameters.%s: range lo %v > hi %v", name, p.Range[0], p.Range[1])
	}
	if p.Min != nil && p.Max != nil && *p.Min > *p.Max {
		errs.addf("standard_schema.parameters.%s: min %v > max %v", name, *p.Min, *p.Max)
	}
	if p.Pattern != "" {
		re, err := regexp.Compile(p.Pattern)
		if err != nil {
			errs.addf("standard_schema.parameters.%s: invalid pattern: %v", name, err)
		} else {
			p.pattern = re
		}
	}
}

func validateProvider(errs *problems, id string, p *Provider) {
	if p == nil {
		errs.addf("providers.%s: empty definition", id)
		return
	}

	switch {
	case p.BaseURL == "" && p.BaseURLTemplate == "":
		errs.addf("providers.%s: one of base_url or base_url_template is required", id)
	case p.BaseURL != "" && p.BaseURLTemplate != "":
		errs.addf("providers.%s: base_url and base_url_template are mutually exclusive", id)
	}
	if p.BaseURLTemplate != "" {
		for _, match := range templateVar.FindAllStringSubmatch(p.BaseURLTemplate, -1) {
			if _, ok := p.ConnectionVars[match[1]]; !ok {
				errs.addf("providers.%s: base_url_template variable {%s} has no connection_vars entry", id, match[1])
			}
		}
	}

	validateAuth(errs, id, p.Auth)

	if p.ChatEndpoint != "" && !strings.HasPrefix(p.ChatEndpoint, "/") {
		errs.addf("providers.%s: chat_endpoint must start with /", id)
	}
	if p.StreamEndpoint != "" && !strings.HasPrefix(p.StreamEndpoint, "/") {
		errs.addf("providers.%s: stream_endpoint must start with /", id)
	}

	switch p.PayloadFormat {
	case PayloadOpenAI, PayloadAnthropic, PayloadGemini, PayloadCohere, PayloadCustom:
	default:
		errs.addf("providers.%s: unknown payload_format %q", id, p.PayloadFormat)
	}

	for _, param := range sortedKeys(p.ParameterMappings) {
		target := p.ParameterMappings[param]
		if strings.TrimSpace(target) == "" {
			errs.addf("providers.%s: parameter_mappings.%s: empty target path", id, param)
			continue
		}
		segs, err := splitPath(target)
		if err != nil {
			errs.addf("providers.%s: parameter_mappings.%s: %v", id, param, err)
			continue
		}
		// Targets are write paths; SetPath only creates object keys.
		for _, seg := range segs {
			if seg.hasIndex {
				errs.addf("providers.%s: parameter_mappings.%s: target %q contains an array index and can never be written", id, param, target)
				break
			}
		}
	}

	if _, ok := p.ResponsePaths["content"]; !ok {
		errs.addf("providers.%s: response_paths.content is required", id)
	}
	for _, field := range sortedKeys(p.ResponsePaths) {
		path := p.ResponsePaths[field]
		if strings.TrimSpace(path) == "" {
			errs.addf("providers.%s: response_paths.%s: empty path", id, field)
			continue
		}
		if _, err := splitPath(path); err != nil {
			errs.addf("providers.%s: response_paths.%s: %v", id, field, err)
		}
	}

	validateStreaming(errs, id, &p.Streaming)
}

func validateAuth(errs *problems, id string, a Auth) {
	switch a.Type {
	case AuthBearer:
		if a.TokenEnv == "" {
			errs.addf("providers.%s: auth.token_env is required for bearer auth", id)
		}
	case AuthAPIKey:
		if a.KeyEnv == "" {
			errs.addf("providers.%s: auth.key_env is required for api_key auth", id)
		}
	case AuthQueryParam:
		if a.ParamName == "" {
			errs.addf("providers.%s: auth.param_name is required for query_param auth", id)
		}
		if a.TokenEnv == "" {
			errs.addf("providers.%s: auth.token_env is required for query_param auth", id)
		}
	default:
		errs.addf("providers.%s: unknown auth type %q", id, a.Type)
	}
	for i, h := range a.ExtraHeaders {
		if strings.TrimSpace(h.Name) == "" {
			errs.addf("providers.%s: auth.extra_headers[%d]: empty header name", id, i)
		}
	}
}

func validateStreaming(errs *problems, id string, s *Streaming) {
	if s.Decoder != nil {
		switch s.Decoder.Format {
		case "", "sse", "jsonl":
		default:
			errs.addf("providers.%s: streaming.decoder.format %q is not supported", id, s.Decoder.Format)
		}
	}

	for i := range s.EventMap {
		rule := &s.EventMap[i]
		matcher, err := CompileMatch(rule.Match)
		if err != nil {
			errs.addf("providers.%s: streaming.event_map[%d]: %v", id, i, err)
		} else {
			rule.matcher = matcher
		}
		if !knownEventKind(rule.Emit) {
			errs.addf("providers.%s: streaming.event_map[%d]: unknown emit kind %q", id, i, rule.Emit)
		}
		for _, field := range sortedKeys(rule.Fields) {
			path := rule.Fields[field]
			if strings.TrimSpace(path) == "" {
				errs.addf("providers.%s: streaming.event_map[%d].fields.%s: empty path", id, i, field)
				continue
			}
			if _, err := splitPath(path); err != nil {
				errs.addf("providers.%s: streaming.event_map[%d].fields.%s: %v", id, i, field, err)
			}
		}
	}

	if s.StopCondition != "" {
		stop, err := CompileMatch(s.StopCondition)
		if err != nil {
			errs.addf("providers.%s: streaming.stop_condition: %v", id, err)
		} else {
			s.stop = stop
		}
	}
}

func validateModel(errs *problems, id string, m *Model, providers map[string]*Provider) {
	if m == nil {
		errs.addf("models.%s: empty definition", id)
		return
	}
	if m.Provider == "" {
		errs.addf("models.%s: provider is required", id)
	} else if _, ok := providers[m.Provider]; !ok {
		errs.addf("models.%s: references unknown provider %q", id, m.Provider)
	}
	if strings.TrimSpace(m.ModelID) == "" {
		errs.addf("models.%s: model_id is required", id)
	}
	if m.ContextWindow < 1 {
		errs.addf("models.%s: context_window must be >= 1, got %d", id, m.ContextWindow)
	}
	switch m.Status {
	case StatusActive, StatusDeprecated, StatusExperimental, StatusDisabled:
	default:
		errs.addf("models.%s: unknown status %q", id, m.Status)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
