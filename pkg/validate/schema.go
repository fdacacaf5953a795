// Copyright 2026 Mark Kendrick
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package validate

import (
	"fmt"
	"regexp"
	"strings"
)

// Schema builds a Validator that checks values against a JSON-Schema-like
// structure. Supported keywords:
//
//   - type: string, number, integer, boolean, array, object, null
//   - nullable, required (boolean presence flag on any node)
//   - string: minLength, maxLength, pattern, enum
//   - number/integer: minimum, maximum ("integer" strictly rejects
//     non-integral numbers; "number" accepts both)
//   - array: minItems, maxItems, items (recursive)
//   - object: required (property list), properties (recursive),
//     additionalProperties: false (unknown keys are warnings, not errors)
//
// Failures carry JSON-path style locations, e.g. "$.items[0].name".
type schemaValidator struct {
	schema map[string]any
}

// Schema returns a Validator for the given schema.
func Schema(schema map[string]any) Validator {
	return &schemaValidator{schema: schema}
}

// Validate implements Validator.
func (v *schemaValidator) Validate(value any) Result {
	res := OK()
	validateNode(v.schema, value, "$", &res)
	return res
}

func addError(res *Result, path, format string, args ...any) {
	res.Valid = false
	res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func addWarning(res *Result, path, format string, args ...any) {
	res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", path, fmt.Sprintf(format, args...)))
}

func validateNode(schema map[string]any, value any, path string, res *Result) {
	if schema == nil {
		return
	}

	if value == nil {
		if schemaAllowsNil(schema) {
			return
		}
		addError(res, path, "required value is missing")
		return
	}

	schemaType, _ := schema["type"].(string)

	switch schemaType {
	case "":
		// No type constraint: structural keywords still apply when the
		// value shape matches.
		if obj, ok := value.(map[string]any); ok {
			validateObject(schema, obj, path, res)
		}
		if arr, ok := value.([]any); ok {
			validateArray(schema, arr, path, res)
		}
	case "null":
		addError(res, path, "expected null, got %T", value)
	case "string":
		str, ok := value.(string)
		if !ok {
			addError(res, path, "expected string, got %T", value)
			return
		}
		validateString(schema, str, path, res)
	case "boolean":
		if _, ok := value.(bool); !ok {
			addError(res, path, "expected boolean, got %T", value)
		}
	case "number":
		num, ok := toFloat(value)
		if !ok {
			addError(res, path, "expected number, got %T", value)
			return
		}
		validateBounds(schema, num, path, res)
	case "integer":
		num, ok := toFloat(value)
		if !ok {
			addError(res, path, "expected integer, got %T", value)
			return
		}
		if num != float64(int64(num)) {
			addError(res, path, "expected integer, got %v", num)
			return
		}
		validateBounds(schema, num, path, res)
	case "array":
		arr, ok := value.([]any)
		if !ok {
			addError(res, path, "expected array, got %T", value)
			return
		}
		validateArray(schema, arr, path, res)
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			addError(res, path, "expected object, got %T", value)
			return
		}
		validateObject(schema, obj, path, res)
	default:
		addError(res, path, "unsupported schema type: %s", schemaType)
	}
}

func validateString(schema map[string]any, str, path string, res *Result) {
	if min, ok := toInt(schema["minLength"]); ok && len(str) < min {
		addError(res, path, "string length %d is below minLength %d", len(str), min)
	}
	if max, ok := toInt(schema["maxLength"]); ok && len(str) > max {
		addError(res, path, "string length %d exceeds maxLength %d", len(str), max)
	}
	if pattern, ok := schema["pattern"].(string); ok && pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			addError(res, path, "invalid pattern %q: %v", pattern, err)
		} else if !re.MatchString(str) {
			addError(res, path, "value %q does not match pattern %q", str, pattern)
		}
	}
	if enum, ok := schema["enum"].([]any); ok {
		for _, allowed := range enum {
			if s, ok := allowed.(string); ok && s == str {
				return
			}
		}
		allowed := make([]string, 0, len(enum))
		for _, e := range enum {
			allowed = append(allowed, fmt.Sprintf("%v", e))
		}
		addError(res, path, "value %q not in allowed values: [%s]", str, strings.Join(allowed, ", "))
	}
}

func validateBounds(schema map[string]any, num float64, path string, res *Result) {
	if min, ok := toFloat(schema["minimum"]); ok && num < min {
		addError(res, path, "value %v is below minimum %v", num, min)
	}
	if max, ok := toFloat(schema["maximum"]); ok && num > max {
		addError(res, path, "value %v exceeds maximum %v", num, max)
	}
}

func validateArray(schema map[string]any, arr []any, path string, res *Result) {
	if min, ok := toInt(schema["minItems"]); ok && len(arr) < min {
		addError(res, path, "array has %d items, below minItems %d", len(arr), min)
	}
	if max, ok := toInt(schema["maxItems"]); ok && len(arr) > max {
		addError(res, path, "array has %d items, exceeds maxItems %d", len(arr), max)
	}
	if items, ok := schema["items"].(map[string]any); ok {
		for i, item := range arr {
			validateNode(items, item, fmt.Sprintf("%s[%d]", path, i), res)
		}
	}
}

func validateObject(schema map[string]any, obj map[string]any, path string, res *Result) {
	if required, ok := schema["required"].([]any); ok {
		for _, field := range required {
			name, ok := field.(string)
			if !ok {
				continue
			}
			if _, exists := obj[name]; !exists {
				addError(res, path, "missing required field: %s", name)
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for name, value := range obj {
		propSchema, known := properties[name].(map[string]any)
		if known {
			validateNode(propSchema, value, path+"."+name, res)
			continue
		}
		if additional, ok := schema["additionalProperties"].(bool); ok && !additional {
			addWarning(res, path, "unknown field: %s", name)
		}
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
