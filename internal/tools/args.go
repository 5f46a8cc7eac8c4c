package tools

import "fmt"

// validateSchema checks args against a JSON-schema-shaped parameter
// declaration: required fields present, declared types respected.
// Range checks are the handlers' concern.
func validateSchema(schema, args map[string]any) error {
	props, _ := schema["properties"].(map[string]any)

	if required, ok := schema["required"].([]string); ok {
		for _, field := range required {
			if _, present := args[field]; !present {
				return &ValidationError{Field: field, Message: "required argument missing"}
			}
		}
	}

	for field, value := range args {
		decl, known := props[field].(map[string]any)
		if !known {
			continue // tolerate extra arguments, the handler ignores them
		}
		declType, _ := decl["type"].(string)
		if declType == "" || typeMatches(declType, value) {
			continue
		}
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("expected %s, got %T", declType, value),
		}
	}
	return nil
}

func typeMatches(declType string, value any) bool {
	switch declType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number", "integer":
		switch value.(type) {
		case float64, int:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}

func numberArg(args map[string]any, field string) (float64, error) {
	v, present := args[field]
	if !present {
		return 0, &ValidationError{Field: field, Message: "required argument missing"}
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	default:
		return 0, &ValidationError{Field: field, Message: fmt.Sprintf("expected number, got %T", v)}
	}
}

func numberInRange(args map[string]any, field string, lo, hi float64) (float64, error) {
	v, err := numberArg(args, field)
	if err != nil {
		return 0, err
	}
	if v < lo || v > hi {
		return 0, &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%g outside plausible range [%g, %g]", v, lo, hi),
		}
	}
	return v, nil
}

func stringArg(args map[string]any, field string) (string, error) {
	v, present := args[field]
	if !present {
		return "", &ValidationError{Field: field, Message: "required argument missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: field, Message: fmt.Sprintf("expected string, got %T", v)}
	}
	return s, nil
}

func optionalString(args map[string]any, field, fallback string) string {
	if s, ok := args[field].(string); ok && s != "" {
		return s
	}
	return fallback
}

func oneOf(field, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("%q is not one of %v", value, allowed),
	}
}
