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

package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/pflag"
)

// kvValue collects repeated key=value flags into a map.
type kvValue map[string]string

var _ pflag.Value = (*kvValue)(nil)

func (v *kvValue) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("%q: expected key=value", s)
	}
	if *v == nil {
		*v = kvValue{}
	}
	(*v)[key] = value
	return nil
}

func (v *kvValue) String() string {
	if len(*v) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(*v))
	for k, val := range *v {
		pairs = append(pairs, k+"="+val)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (v *kvValue) Type() string { return "key=value" }

// asInput widens the collected pairs for use as workflow input.
func (v kvValue) asInput() map[string]any {
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}
