package output

import (
	"bytes"
	"encoding/json"
	"fmt"

	sigsyaml "sigs.k8s.io/yaml"
)

// SerializeYAML converts a report to YAML. Field names follow the json
// tags of the value.
func SerializeYAML(v any) ([]byte, error) {
	yamlBytes, err := sigsyaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializing YAML: %w", err)
	}

	return ensureNewline(yamlBytes), nil
}

// SerializeJSON converts a report to indented JSON. The document is routed
// through the YAML form so both formats expose the same fields.
func SerializeJSON(v any, indent string) ([]byte, error) {
	if indent == "" {
		indent = "  "
	}

	yamlBytes, err := sigsyaml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializing intermediate YAML: %w", err)
	}

	jsonBytes, err := sigsyaml.YAMLToJSON(yamlBytes)
	if err != nil {
		return nil, fmt.Errorf("converting to JSON: %w", err)
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, jsonBytes, "", indent); err != nil {
		return nil, fmt.Errorf("formatting JSON: %w", err)
	}

	return ensureNewline(buf.Bytes()), nil
}

func ensureNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] != '\n' {
		b = append(b, '\n')
	}

	return b
}
