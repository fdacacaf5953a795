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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestValidateNilConfig(t *testing.T) {
	res := Validate(context.Background(), "anything", nil)
	assert.True(t, res.Valid)
}

func TestValidateNilValue(t *testing.T) {
	tests := []struct {
		name  string
		cfg   *Config
		valid bool
	}{
		{
			name:  "nil with required false passes",
			cfg:   &Config{Required: boolPtr(false), Schema: map[string]any{"type": "string"}},
			valid: true,
		},
		{
			name:  "nil with required true fails",
			cfg:   &Config{Required: boolPtr(true)},
			valid: false,
		},
		{
			name:  "nil with nullable schema passes",
			cfg:   &Config{Schema: map[string]any{"type": "string", "nullable": true}},
			valid: true,
		},
		{
			name:  "nil with plain schema fails",
			cfg:   &Config{Schema: map[string]any{"type": "string"}},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Validate(context.Background(), nil, tt.cfg)
			assert.Equal(t, tt.valid, res.Valid, "errors: %v", res.Errors)
		})
	}
}

func TestValidateCustomValidator(t *testing.T) {
	cfg := &Config{
		Validator: Func(func(value any) Result {
			if value == "good" {
				return OK()
			}
			return Fail("value is not good")
		}),
	}

	assert.True(t, Validate(context.Background(), "good", cfg).Valid)

	res := Validate(context.Background(), "bad", cfg)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors, "value is not good")
}

func TestValidateCustomAndSchemaAccumulate(t *testing.T) {
	cfg := &Config{
		Validator: Func(func(any) Result { return Fail("custom says no") }),
		Schema:    map[string]any{"type": "number"},
	}

	res := Validate(context.Background(), "a string", cfg)
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 2)
}

func TestValidateTimeout(t *testing.T) {
	cfg := &Config{
		Timeout: 50 * time.Millisecond,
		Validator: Func(func(any) Result {
			time.Sleep(2 * time.Second)
			return OK()
		}),
	}

	start := time.Now()
	res := Validate(context.Background(), "x", cfg)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "timed out")
	assert.Less(t, time.Since(start), time.Second)
}

func TestValidatePanicRecovered(t *testing.T) {
	cfg := &Config{
		Validator: Func(func(any) Result { panic("validator bug") }),
	}

	res := Validate(context.Background(), "x", cfg)
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "validator panicked")
}

func TestSchemaTypes(t *testing.T) {
	tests := []struct {
		name   string
		schema map[string]any
		value  any
		valid  bool
	}{
		{"string ok", map[string]any{"type": "string"}, "hi", true},
		{"string wrong type", map[string]any{"type": "string"}, 42, false},
		{"boolean ok", map[string]any{"type": "boolean"}, true, true},
		{"boolean wrong type", map[string]any{"type": "boolean"}, "true", false},
		{"number accepts float", map[string]any{"type": "number"}, 3.14, true},
		{"number accepts int", map[string]any{"type": "number"}, 3, true},
		{"integer accepts whole float", map[string]any{"type": "integer"}, float64(5), true},
		{"integer rejects fraction", map[string]any{"type": "integer"}, 5.5, false},
		{"integer rejects string", map[string]any{"type": "integer"}, "5", false},
		{"array ok", map[string]any{"type": "array"}, []any{1, 2}, true},
		{"array wrong type", map[string]any{"type": "array"}, "nope", false},
		{"object ok", map[string]any{"type": "object"}, map[string]any{}, true},
		{"null rejects value", map[string]any{"type": "null"}, "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Schema(tt.schema).Validate(tt.value)
			assert.Equal(t, tt.valid, res.Valid, "errors: %v", res.Errors)
		})
	}
}

func TestSchemaStringConstraints(t *testing.T) {
	schema := map[string]any{
		"type":      "string",
		"minLength": 2,
		"maxLength": 5,
		"pattern":   "^[a-z]+$",
	}

	assert.True(t, Schema(schema).Validate("abc").Valid)
	assert.False(t, Schema(schema).Validate("a").Valid, "below minLength")
	assert.False(t, Schema(schema).Validate("abcdef").Valid, "above maxLength")
	assert.False(t, Schema(schema).Validate("ABC").Valid, "pattern mismatch")
}

func TestSchemaEnum(t *testing.T) {
	schema := map[string]any{"type": "string", "enum": []any{"red", "green", "blue"}}

	assert.True(t, Schema(schema).Validate("green").Valid)

	res := Schema(schema).Validate("purple")
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "purple")
}

func TestSchemaNumericBounds(t *testing.T) {
	schema := map[string]any{"type": "number", "minimum": 0, "maximum": 10}

	assert.True(t, Schema(schema).Validate(5).Valid)
	assert.False(t, Schema(schema).Validate(-1).Valid)
	assert.False(t, Schema(schema).Validate(11).Valid)
}

func TestSchemaArrayItems(t *testing.T) {
	schema := map[string]any{
		"type":     "array",
		"minItems": 1,
		"maxItems": 3,
		"items":    map[string]any{"type": "integer"},
	}

	assert.True(t, Schema(schema).Validate([]any{1, 2}).Valid)
	assert.False(t, Schema(schema).Validate([]any{}).Valid, "below minItems")
	assert.False(t, Schema(schema).Validate([]any{1, 2, 3, 4}).Valid, "above maxItems")

	res := Schema(schema).Validate([]any{1, "two"})
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "$[1]")
}

func TestSchemaObjectRequiredAndProperties(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []any{"name", "count"},
		"properties": map[string]any{
			"name":  map[string]any{"type": "string"},
			"count": map[string]any{"type": "integer"},
			"nested": map[string]any{
				"type":       "object",
				"required":   []any{"inner"},
				"properties": map[string]any{"inner": map[string]any{"type": "boolean"}},
			},
		},
	}

	valid := map[string]any{"name": "a", "count": float64(2), "nested": map[string]any{"inner": true}}
	assert.True(t, Schema(schema).Validate(valid).Valid)

	res := Schema(schema).Validate(map[string]any{"name": "a"})
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "missing required field: count")

	res = Schema(schema).Validate(map[string]any{"name": "a", "count": 1, "nested": map[string]any{}})
	require.False(t, res.Valid)
	assert.Contains(t, res.Errors[0], "$.nested")
}

func TestSchemaAdditionalPropertiesWarns(t *testing.T) {
	schema := map[string]any{
		"type":                 "object",
		"properties":           map[string]any{"known": map[string]any{"type": "string"}},
		"additionalProperties": false,
	}

	res := Schema(schema).Validate(map[string]any{"known": "x", "mystery": 1})
	assert.True(t, res.Valid, "unknown keys must not fail validation")
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "mystery")
}

func TestAllOf(t *testing.T) {
	v := AllOf(
		Schema(map[string]any{"type": "string", "minLength": 2}),
		Func(func(value any) Result {
			if value == "no" {
				return Fail("custom rejection")
			}
			return OK()
		}),
	)

	assert.True(t, v.Validate("yes").Valid)

	res := v.Validate("no")
	require.False(t, res.Valid)
	// minLength and custom both fail; errors concatenate.
	assert.Len(t, res.Errors, 1)

	res = v.Validate("x")
	require.False(t, res.Valid)
	assert.Len(t, res.Errors, 1)
}

func TestAnyOf(t *testing.T) {
	v := AnyOf(
		Schema(map[string]any{"type": "string"}),
		Schema(map[string]any{"type": "integer"}),
	)

	assert.True(t, v.Validate("text").Valid)
	assert.True(t, v.Validate(7).Valid)

	res := v.Validate(true)
	require.False(t, res.Valid)
	require.Len(t, res.Errors, 1, "anyOf failures join into one summary")
	assert.Contains(t, res.Errors[0], "no validator matched")
	assert.Contains(t, res.Errors[0], "option 1")
	assert.Contains(t, res.Errors[0], "option 2")
}

func TestAnyOfShortCircuits(t *testing.T) {
	called := false
	v := AnyOf(
		Func(func(any) Result { return OK() }),
		Func(func(any) Result { called = true; return OK() }),
	)

	require.True(t, v.Validate("x").Valid)
	assert.False(t, called, "first pass should short-circuit")
}
