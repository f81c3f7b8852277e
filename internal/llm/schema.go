package llm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	validator "github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrSchemaViolation is returned when model output does not match its schema.
var ErrSchemaViolation = errors.New("output does not match schema")

// Schema describes the JSON object a structured completion must return.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any

	once     sync.Once
	compiled *validator.Schema
	err      error
}

// SchemaFor reflects T into a strict JSON schema: every property required
// and no additional properties, which is what OpenAI structured outputs accept.
func SchemaFor[T any](name, description string) *Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	def, err := schemaToMap(reflector.Reflect(v))
	if err != nil {
		panic(fmt.Sprintf("reflect schema %s: %v", name, err))
	}
	delete(def, "$schema")
	delete(def, "$id")
	ensureStrict(def)
	return &Schema{Name: name, Description: description, Definition: def}
}

func schemaToMap(schema *jsonschema.Schema) (map[string]any, error) {
	b, err := schema.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func ensureStrict(schema map[string]any) {
	if t, ok := schema["type"].(string); ok && t == "object" {
		schema["additionalProperties"] = false

		if props, ok := schema["properties"].(map[string]any); ok && len(props) > 0 {
			required := make([]string, 0, len(props))
			for name := range props {
				required = append(required, name)
			}
			sort.Strings(required)
			schema["required"] = required
		}
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		for _, prop := range props {
			if m, ok := prop.(map[string]any); ok {
				ensureStrict(m)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		ensureStrict(items)
	}
}

// Instructions renders the schema as prompt text for providers without
// native structured output.
func (s *Schema) Instructions() string {
	b, err := json.MarshalIndent(s.Definition, "", "  ")
	if err != nil {
		return ""
	}
	return "Odgovor mora biti JSON objekt, ki ustreza naslednji JSON shemi:\n```json\n" + string(b) + "\n```"
}

// Decode extracts the JSON object from model output, validates it against
// the schema and unmarshals it into v.
func (s *Schema) Decode(output string, v any) error {
	raw, err := extractJSON(output)
	if err != nil {
		return err
	}
	if err := s.Validate(raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Validate checks a JSON document against the schema.
func (s *Schema) Validate(raw []byte) error {
	compiled, err := s.compile()
	if err != nil {
		return err
	}
	doc, err := validator.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("parse %s output: %w", s.Name, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSchemaViolation, s.Name, err)
	}
	return nil
}

func (s *Schema) compile() (*validator.Schema, error) {
	s.once.Do(func() {
		b, err := json.Marshal(s.Definition)
		if err != nil {
			s.err = fmt.Errorf("marshal schema %s: %w", s.Name, err)
			return
		}
		doc, err := validator.UnmarshalJSON(bytes.NewReader(b))
		if err != nil {
			s.err = fmt.Errorf("parse schema %s: %w", s.Name, err)
			return
		}
		url := "https://aiact.local/schemas/" + s.Name + ".json"
		c := validator.NewCompiler()
		if err := c.AddResource(url, doc); err != nil {
			s.err = fmt.Errorf("add schema %s: %w", s.Name, err)
			return
		}
		s.compiled, s.err = c.Compile(url)
	})
	return s.compiled, s.err
}

// DecodeJSON parses model output into v without schema validation.
func DecodeJSON(output string, v any) error {
	raw, err := extractJSON(output)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// extractJSON finds the JSON object in model output. It accepts bare JSON,
// JSON inside a markdown fence and JSON surrounded by prose.
func extractJSON(output string) ([]byte, error) {
	s := strings.TrimSpace(output)
	if s == "" {
		return nil, io.ErrUnexpectedEOF
	}
	if json.Valid([]byte(s)) {
		return []byte(s), nil
	}

	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	raw := []byte(s[start : end+1])
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON in model output (len=%d)", len(raw))
	}
	return raw, nil
}
