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

package agent

import (
	"context"
	"sync"
)

// CallResult pairs one batch request with its outcome. Index refers to
// the request's position in the input slice.
type CallResult struct {
	Index    int
	Response *Response
	Err      error
}

// SequenceConfig configures CallSequence.
type SequenceConfig struct {
	// StopOnError stops the sequence at the first failed call. Remaining
	// requests are not attempted. Defaults to true; set a pointer to
	// false to run the full sequence regardless.
	StopOnError *bool

	// Override is merged over the caller's base config for every call.
	Override *Config
}

// CallSequence runs the requests one after another, in order. Results
// hold one entry per attempted request; when StopOnError is in effect
// (the default) the slice is truncated at the first failure.
func (c *Caller) CallSequence(ctx context.Context, reqs []*Request, cfg *SequenceConfig) []CallResult {
	stopOnError := true
	var override *Config
	if cfg != nil {
		if cfg.StopOnError != nil {
			stopOnError = *cfg.StopOnError
		}
		override = cfg.Override
	}

	results := make([]CallResult, 0, len(reqs))
	for i, req := range reqs {
		if ctx.Err() != nil {
			break
		}
		resp, err := c.Call(ctx, req, override)
		results = append(results, CallResult{Index: i, Response: resp, Err: err})
		if err != nil && stopOnError {
			break
		}
	}
	return results
}

// CallParallel runs the requests through a bounded worker pool with at
// most maxConcurrency calls in flight. Results come back indexed by
// input position; every request gets an entry. maxConcurrency below 1 is
// treated as 1.
func (c *Caller) CallParallel(ctx context.Context, reqs []*Request, maxConcurrency int, override *Config) []CallResult {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	results := make([]CallResult, len(reqs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < maxConcurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				resp, err := c.Call(ctx, reqs[i], override)
				results[i] = CallResult{Index: i, Response: resp, Err: err}
			}
		}()
	}

	for i := range reqs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
