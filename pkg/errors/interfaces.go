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

package errors

// ErrorClassifier defines methods for programmatic error handling.
// Errors that implement this interface can be classified by type for retry
// logic, error reporting, or specific handling paths. Retry predicates
// consult this interface before falling back to transient-substring
// matching on the error text.
type ErrorClassifier interface {
	error

	// ErrorType returns a string identifying the error category.
	// Examples: "validation", "not_found", "timeout", "worker"
	ErrorType() string

	// IsRetryable returns true if the operation should be retried.
	IsRetryable() bool
}

// Retryable reports whether err should be retried according to its
// classification. Unclassified errors report false here; callers layer
// their own transient-error heuristics on top.
func Retryable(err error) (retryable, classified bool) {
	var classifier ErrorClassifier
	if As(err, &classifier) {
		return classifier.IsRetryable(), true
	}
	return false, false
}
