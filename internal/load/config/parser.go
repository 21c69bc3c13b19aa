package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/wesleyorama2/vuload/internal/load/profile"
)

//go:embed schema.json
var schemaJSON string

const schemaURL = "schema.json"

var (
	compiledSchema *jsonschema.Schema
	schemaErr      error
	schemaOnce     sync.Once
)

func configSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft7
		if err := compiler.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("invalid config schema: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("invalid config schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// LoadConfig loads a test configuration from a file.
//
// The file format is determined by extension:
//   - .yaml, .yml -> YAML
//   - .json -> JSON
//
// Returns the parsed TestConfig or an error if parsing fails.
func LoadConfig(path string) (*TestConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return ParseConfig(data, path)
}

// ParseConfig parses configuration data.
//
// The document is checked against the embedded JSON Schema before it is
// decoded, so unknown fields and wrongly typed values are reported with
// their location. Schema violations are returned as *ValidationErrors.
// The format is determined by the file extension in path, or defaults to
// YAML if the path is empty or has an unknown extension.
func ParseConfig(data []byte, path string) (*TestConfig, error) {
	doc, err := decodeDocument(data, strings.ToLower(filepath.Ext(path)))
	if err != nil {
		return nil, err
	}

	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	// Both formats are decoded through YAML so scalars such as `value: 200`
	// land in string fields the same way.
	normalized, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}

	var config TestConfig
	if err := yaml.Unmarshal(normalized, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	return &config, nil
}

// decodeDocument parses data into a generic JSON-compatible value.
func decodeDocument(data []byte, ext string) (interface{}, error) {
	var raw interface{}

	if ext == ".json" {
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		return raw, nil
	}

	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	// Round-trip through JSON so numbers and maps have the shapes the
	// schema validator expects.
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("config cannot be represented as JSON: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(encoded, &doc); err != nil {
		return nil, fmt.Errorf("failed to normalize YAML config: %w", err)
	}
	return doc, nil
}

func validateDocument(doc interface{}) error {
	schema, err := configSchema()
	if err != nil {
		return err
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}

	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	errs := &ValidationErrors{}
	for _, leaf := range schemaLeaves(ve) {
		errs.Add(pointerToField(leaf.InstanceLocation), leaf.Message)
	}
	return errs
}

// schemaLeaves flattens a validation error tree to its most specific causes.
func schemaLeaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var leaves []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		leaves = append(leaves, schemaLeaves(c)...)
	}
	return leaves
}

// pointerToField converts a JSON pointer such as /requests/0/url into
// requests[0].url.
func pointerToField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}

	var sb strings.Builder
	for _, part := range strings.Split(ptr, "/") {
		part = strings.ReplaceAll(strings.ReplaceAll(part, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(part); err == nil && sb.Len() > 0 {
			sb.WriteString("[" + part + "]")
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(".")
		}
		sb.WriteString(part)
	}
	return sb.String()
}

// ParseDurationString parses a duration string with support for common formats.
//
// Supported formats:
//   - Standard Go duration: "30s", "2m", "1h30m", "500ms"
//   - Seconds as integer: "30" (treated as 30 seconds)
//
// Returns the parsed duration or an error.
func ParseDurationString(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	// Try standard Go duration parsing first
	d, err := time.ParseDuration(s)
	if err == nil {
		return d, nil
	}

	// Try parsing as integer seconds
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return 0, fmt.Errorf("invalid duration format: %s", s)
}

// ResolveVariables resolves {{name}} placeholders in a string.
//
// Variables come from the test's variables map, then {{baseUrl}} (or
// {{baseURL}}) from settings. Unresolved placeholders are left as-is.
func ResolveVariables(input string, variables map[string]string, settings *GlobalSettings) string {
	result := input

	for key, value := range variables {
		result = strings.ReplaceAll(result, "{{"+key+"}}", value)
	}

	if settings != nil && settings.BaseURL != "" {
		base := strings.TrimRight(settings.BaseURL, "/")
		result = strings.ReplaceAll(result, "{{baseUrl}}", base)
		result = strings.ReplaceAll(result, "{{baseURL}}", base)
	}

	return result
}

// ResolveURL returns the absolute URL for a request: placeholders are
// substituted and relative paths are joined to settings.baseUrl.
func (c *TestConfig) ResolveURL(req RequestConfig) string {
	u := ResolveVariables(req.URL, c.Variables, &c.Settings)
	if isAbsolute(u) || c.Settings.BaseURL == "" {
		return u
	}
	return strings.TrimRight(c.Settings.BaseURL, "/") + "/" + strings.TrimLeft(u, "/")
}

// ResolveHeaders merges settings headers with request headers, request
// headers winning, and substitutes placeholders in values.
func (c *TestConfig) ResolveHeaders(req RequestConfig) map[string]string {
	if len(c.Settings.Headers) == 0 && len(req.Headers) == 0 {
		return nil
	}
	headers := make(map[string]string, len(c.Settings.Headers)+len(req.Headers))
	for k, v := range c.Settings.Headers {
		headers[k] = ResolveVariables(v, c.Variables, &c.Settings)
	}
	for k, v := range req.Headers {
		headers[k] = ResolveVariables(v, c.Variables, &c.Settings)
	}
	return headers
}

func isAbsolute(u string) bool {
	lower := strings.ToLower(u)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// ApplyDefaults fills request names and methods.
func ApplyDefaults(config *TestConfig) {
	for i, req := range config.Requests {
		if req.Method == "" {
			config.Requests[i].Method = "GET"
		} else {
			config.Requests[i].Method = strings.ToUpper(req.Method)
		}
		if req.Name == "" {
			config.Requests[i].Name = fmt.Sprintf("%s %s", config.Requests[i].Method, req.URL)
		}
	}
}

// ToProfile converts the options into a load profile.
func (c *TestConfig) ToProfile() profile.LoadProfile {
	p := profile.LoadProfile{
		VUs:      c.Options.VUs,
		Duration: time.Duration(c.Options.Duration),
	}
	for _, s := range c.Options.Stages {
		p.Stages = append(p.Stages, profile.Stage{
			Duration: time.Duration(s.Duration),
			Target:   s.Target,
			Name:     s.Name,
		})
	}
	return p
}

// Sleep returns the pause between iterations.
func (c *TestConfig) Sleep() time.Duration {
	return time.Duration(c.Options.SleepSeconds * float64(time.Second))
}
