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

package jq

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkendrick/adwflow/pkg/errors"
)

func TestExecutorExecute(t *testing.T) {
	e := NewExecutor(0, 0)
	ctx := context.Background()

	tests := []struct {
		name       string
		expression string
		data       any
		want       any
		wantErr    bool
	}{
		{
			name:       "empty expression passes data through",
			expression: "",
			data:       map[string]any{"foo": "bar"},
			want:       map[string]any{"foo": "bar"},
		},
		{
			name:       "field extraction",
			expression: ".summary",
			data:       map[string]any{"summary": "three files changed"},
			want:       "three files changed",
		},
		{
			name:       "nested path",
			expression: ".result.files[0]",
			data: map[string]any{
				"result": map[string]any{"files": []any{"a.go", "b.go"}},
			},
			want: "a.go",
		},
		{
			name:       "missing field yields nil",
			expression: ".missing",
			data:       map[string]any{"foo": "bar"},
			want:       nil,
		},
		{
			name:       "multiple outputs become a slice",
			expression: ".[] | .name",
			data: []any{
				map[string]any{"name": "plan"},
				map[string]any{"name": "build"},
			},
			want: []any{"plan", "build"},
		},
		{
			name:       "object construction",
			expression: "{count: (.items | length)}",
			data:       map[string]any{"items": []any{"a", "b", "c"}},
			want:       map[string]any{"count": 3},
		},
		{
			name:       "evaluation error",
			expression: ".foo.bar",
			data:       map[string]any{"foo": "not an object"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Execute(ctx, tt.expression, tt.data)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, tt.want, got)
		})
	}
}

func TestExecutorInvalidExpression(t *testing.T) {
	e := NewExecutor(0, 0)

	_, err := e.Execute(context.Background(), ".[", map[string]any{})

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "transform", verr.Field)
}

func TestExecutorValidate(t *testing.T) {
	e := NewExecutor(0, 0)

	assert.NoError(t, e.Validate(""))
	assert.NoError(t, e.Validate(".foo | length"))
	assert.Error(t, e.Validate(".["))
}

func TestExecutorInputSizeLimit(t *testing.T) {
	e := NewExecutor(time.Second, 16)

	_, err := e.Execute(context.Background(), ".", map[string]any{
		"payload": "this value is well past sixteen bytes",
	})

	var verr *errors.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, err.Error(), "size limit")
}

func TestExecutorTransformFunc(t *testing.T) {
	fn := NewExecutor(0, 0).TransformFunc()

	got, err := fn(context.Background(), ".status", map[string]any{"status": "ok"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
