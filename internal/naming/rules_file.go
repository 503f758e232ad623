package naming

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// RuleSpec is the on-disk shape of one extra rule.
type RuleSpec struct {
	Name     string   `json:"name"`
	Keywords []string `json:"keywords"`
}

var rulesFileSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"name", "keywords"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string", "minLength": 1},
			"keywords": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 2},
			},
		},
	},
}

// LoadRulesFile reads a JSON rules file and returns the built-in table followed by
// the file's rules, in file order.
func LoadRulesFile(path string) ([]Rule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	extra, err := ParseRules(raw)
	if err != nil {
		return nil, fmt.Errorf("rules file %s: %w", path, err)
	}
	return append(DefaultRules(), extra...), nil
}

// ParseRules validates raw against the rules schema and compiles each entry.
func ParseRules(raw []byte) ([]Rule, error) {
	if err := validateAgainstSchema(rulesFileSchema, raw); err != nil {
		return nil, err
	}
	var specs []RuleSpec
	if err := json.Unmarshal(raw, &specs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	rules := make([]Rule, 0, len(specs))
	for i, s := range specs {
		r, err := NewRule(s.Name, s.Keywords...)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, s.Name, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func validateAgainstSchema(schemaMap map[string]any, data []byte) error {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.schema.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("rules.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("rules do not match schema: %w", err)
	}
	return nil
}
