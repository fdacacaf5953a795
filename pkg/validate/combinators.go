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
	"strings"
)

type allOf struct {
	validators []Validator
}

// AllOf composes validators so that every one must pass. Errors and
// warnings from all validators are concatenated.
func AllOf(validators ...Validator) Validator {
	return &allOf{validators: validators}
}

// Validate implements Validator.
func (a *allOf) Validate(value any) Result {
	res := OK()
	for _, v := range a.validators {
		res = res.Merge(v.Validate(value))
	}
	return res
}

type anyOf struct {
	validators []Validator
}

// AnyOf composes validators so that the first passing one wins. When none
// pass, all errors are joined into a single summary error; warnings from
// the failing branches are preserved.
func AnyOf(validators ...Validator) Validator {
	return &anyOf{validators: validators}
}

// Validate implements Validator.
func (a *anyOf) Validate(value any) Result {
	if len(a.validators) == 0 {
		return OK()
	}

	var branches []string
	var warnings []string
	for i, v := range a.validators {
		res := v.Validate(value)
		if res.Valid {
			return Result{Valid: true, Warnings: res.Warnings}
		}
		branches = append(branches, fmt.Sprintf("option %d: %s", i+1, strings.Join(res.Errors, "; ")))
		warnings = append(warnings, res.Warnings...)
	}

	return Result{
		Valid:    false,
		Errors:   []string{"no validator matched: " + strings.Join(branches, " | ")},
		Warnings: warnings,
	}
}
