package config

import (
	"fmt"
	"os"
	"strconv"
)

func stringFromAny(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		// Typed string enums.
		return fmt.Sprint(s)
	}
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key]; ok {
		*dst = stringFromAny(v)
	}
}

// Numeric values can either be int or float64 depending on whether they've
// been previously marshaled or not, or strings when coming from a query.
func setInt(m map[string]any, key string, dst *int) {
	switch v := m[key].(type) {
	case int:
		*dst = v
	case int64:
		*dst = int(v)
	case float64:
		*dst = int(v)
	case string:
		if i, err := strconv.Atoi(v); err == nil {
			*dst = i
		}
	}
}

func setFloat(m map[string]any, key string, dst *float64) {
	switch v := m[key].(type) {
	case float64:
		*dst = v
	case float32:
		*dst = float64(v)
	case int:
		*dst = float64(v)
	case int64:
		*dst = float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(m map[string]any, key string, dst *bool) {
	switch v := m[key].(type) {
	case bool:
		*dst = v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(name string) (int, error) {
	val := os.Getenv(name)
	if val == "" {
		return 0, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return i, nil
}

func envFloat(name string) (float64, error) {
	val := os.Getenv(name)
	if val == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return f, nil
}
