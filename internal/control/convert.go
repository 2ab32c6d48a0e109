package control

import (
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts a JSON-tagged value into a google.protobuf.Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode %T: %w", v, err)
	}
	return structpb.NewStruct(m)
}

// fromStruct decodes s into out, which must be a pointer to a JSON-tagged type.
func fromStruct(s *structpb.Struct, out any) error {
	raw, err := json.Marshal(s.AsMap())
	if err != nil {
		return fmt.Errorf("encode struct: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode into %T: %w", out, err)
	}
	return nil
}

// listStruct wraps items under key so a list can travel as a Struct.
func listStruct[T any](key string, items []T) (*structpb.Struct, error) {
	if items == nil {
		items = []T{}
	}
	return toStruct(map[string]any{key: items})
}

// stringField returns the trimmed string under key.
func stringField(s *structpb.Struct, key string) (string, error) {
	v, ok := s.GetFields()[key]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrMissingField, key)
	}
	str, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || strings.TrimSpace(str.StringValue) == "" {
		return "", fmt.Errorf("%w: %q must be a non-empty string", ErrMissingField, key)
	}
	return strings.TrimSpace(str.StringValue), nil
}

// stringPair builds a request struct from two string fields.
func stringPair(k1, v1, k2, v2 string) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{k1: v1, k2: v2})
}
