package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

type schemaNode struct {
	Ref        string                 `json:"$ref"`
	Type       string                 `json:"type"`
	Enum       []any                  `json:"enum"`
	Properties map[string]*schemaNode `json:"properties"`
	Defs       map[string]*schemaNode `json:"$defs"`
}

// VerifyAgainstEmbeddedSchema validates the config against the embedded JSON schema.
// Every field of the config must be described by the schema and enum values must match.
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	// parse schema
	var root schemaNode
	if err := json.Unmarshal([]byte(embeddedSchema), &root); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if err := verifyNode(&root, root.Defs, "", configMap); err != nil {
		return fmt.Errorf("schema mismatch: %w", err)
	}

	// basic validation - check required fields match
	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

func verifyNode(node *schemaNode, defs map[string]*schemaNode, path string, value any) error {
	for node != nil && node.Ref != "" {
		name := strings.TrimPrefix(node.Ref, "#/$defs/")
		next, ok := defs[name]
		if !ok {
			return fmt.Errorf("%s: unresolved schema reference %s", path, node.Ref)
		}
		node = next
	}
	if node == nil {
		return fmt.Errorf("%s: not described by schema", path)
	}

	if len(node.Enum) > 0 {
		for _, e := range node.Enum {
			if e == value {
				return nil
			}
		}
		return fmt.Errorf("%s: value %v not in %v", path, value, node.Enum)
	}

	obj, ok := value.(map[string]any)
	if !ok || node.Properties == nil {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sub := strings.TrimPrefix(path+"."+k, ".")
		prop, ok := node.Properties[k]
		if !ok {
			return fmt.Errorf("%s: not described by schema", sub)
		}
		if err := verifyNode(prop, defs, sub, obj[k]); err != nil {
			return err
		}
	}
	return nil
}

// validateRequiredFields performs basic validation of required fields
func validateRequiredFields(cfg *Config) error {
	// check server config
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.Server.Timeout == 0 {
		return fmt.Errorf("server.timeout is required")
	}

	// check remote config
	if cfg.Remote.URL == "" {
		return fmt.Errorf("remote.url is required")
	}
	if cfg.Remote.Timeout == 0 {
		return fmt.Errorf("remote.timeout is required")
	}

	// check refresh config
	if cfg.Refresh.Interval == 0 {
		return fmt.Errorf("refresh.interval is required")
	}

	return nil
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&Config{}), nil
}
