package checker

import (
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"
)

// Match checks an actual value against an expected one. String
// expectations may carry matchers: "~pattern~" matches a regex against
// the stringified value, ">n" / ">=n" / "<n" / "<=n" compare
// numerically. Maps match recursively on the expected keys only, so a
// scenario can pin down just the fields it cares about.
// Returns (true, "") on match, (false, reason) on mismatch.
func Match(actual, expected interface{}) (bool, string) {
	if expected == nil {
		if actual == nil {
			return true, ""
		}
		return false, fmt.Sprintf("expected nil, got %v", actual)
	}
	if actual == nil {
		return false, fmt.Sprintf("expected %v, got nil", expected)
	}

	if expectedStr, ok := expected.(string); ok {
		if strings.HasPrefix(expectedStr, "~") && strings.HasSuffix(expectedStr, "~") && len(expectedStr) > 1 {
			return matchRegex(actual, strings.Trim(expectedStr, "~"))
		}
		if strings.HasPrefix(expectedStr, ">") || strings.HasPrefix(expectedStr, "<") {
			return matchComparison(actual, expectedStr)
		}
	}

	switch expected := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		if !ok {
			return false, fmt.Sprintf("expected string %q, got %T", expected, actual)
		}
		if actualStr != expected {
			return false, fmt.Sprintf("expected %q, got %q", expected, actualStr)
		}
		return true, ""

	case bool:
		actualBool, ok := actual.(bool)
		if !ok {
			return false, fmt.Sprintf("expected bool %v, got %T", expected, actual)
		}
		if actualBool != expected {
			return false, fmt.Sprintf("expected %v, got %v", expected, actualBool)
		}
		return true, ""

	case map[string]interface{}:
		return matchMap(actual, expected)
	}

	if expectedFloat, err := toFloat64(expected); err == nil {
		actualFloat, err := toFloat64(actual)
		if err != nil {
			return false, fmt.Sprintf("expected number %v, got %T", expected, actual)
		}
		if actualFloat != expectedFloat {
			return false, fmt.Sprintf("expected %v, got %v", expected, actual)
		}
		return true, ""
	}

	if kind := reflect.TypeOf(expected).Kind(); kind == reflect.Slice || kind == reflect.Array {
		return matchArray(actual, expected)
	}

	if reflect.DeepEqual(actual, expected) {
		return true, ""
	}
	return false, fmt.Sprintf("expected %v, got %v", expected, actual)
}

func matchRegex(actual interface{}, pattern string) (bool, string) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern %q: %v", pattern, err)
	}

	actualStr := fmt.Sprintf("%v", actual)
	if re.MatchString(actualStr) {
		return true, ""
	}
	return false, fmt.Sprintf("value %q does not match pattern ~%s~", actualStr, pattern)
}

func matchComparison(actual interface{}, comparison string) (bool, string) {
	actualFloat, err := toFloat64(actual)
	if err != nil {
		return false, fmt.Sprintf("cannot compare non-numeric value: %v", actual)
	}

	op := comparison[:1]
	rest := comparison[1:]
	if strings.HasPrefix(rest, "=") {
		op += "="
		rest = rest[1:]
	}

	threshold, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
	if err != nil {
		return false, fmt.Sprintf("invalid comparison value in %q", comparison)
	}

	var ok bool
	switch op {
	case ">":
		ok = actualFloat > threshold
	case ">=":
		ok = actualFloat >= threshold
	case "<":
		ok = actualFloat < threshold
	case "<=":
		ok = actualFloat <= threshold
	default:
		return false, fmt.Sprintf("invalid comparison operator in %q", comparison)
	}

	if ok {
		return true, ""
	}
	return false, fmt.Sprintf("expected value %s %v, got %v", op, threshold, actualFloat)
}

func matchMap(actual interface{}, expected map[string]interface{}) (bool, string) {
	actualMap, ok := actual.(map[string]interface{})
	if !ok {
		return false, fmt.Sprintf("expected object, got %T", actual)
	}

	for key, expectedValue := range expected {
		actualValue, exists := actualMap[key]
		if !exists {
			return false, fmt.Sprintf("missing key %q", key)
		}
		if matched, reason := Match(actualValue, expectedValue); !matched {
			return false, fmt.Sprintf("key %q: %s", key, reason)
		}
	}

	return true, ""
}

func matchArray(actual, expected interface{}) (bool, string) {
	actualVal := reflect.ValueOf(actual)
	expectedVal := reflect.ValueOf(expected)

	if actualVal.Kind() != reflect.Slice && actualVal.Kind() != reflect.Array {
		return false, fmt.Sprintf("expected array, got %T", actual)
	}
	if actualVal.Len() != expectedVal.Len() {
		return false, fmt.Sprintf("expected array length %d, got %d", expectedVal.Len(), actualVal.Len())
	}

	for i := 0; i < expectedVal.Len(); i++ {
		matched, reason := Match(actualVal.Index(i).Interface(), expectedVal.Index(i).Interface())
		if !matched {
			return false, fmt.Sprintf("element %d: %s", i, reason)
		}
	}

	return true, ""
}

func toFloat64(val interface{}) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("not a numeric type: %T", val)
	}
}
