// Copyright 2025 Poiesic Systems
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



// Package judge validates generated answers before they are returned.
//
// Nine checks score an answer between 0 (severe issue) and 1 (no issue):
// citation coverage, groundedness, hallucination, relevance, consistency,
// toxicity, PII leakage, bias and contradiction. Each check either compares
// the score with its configured threshold or fails outright with an error,
// which is recorded as status ERROR with score 0.
//
// Engine runs the checks in two tiers. Tier A (citation coverage, relevance,
// toxicity, PII leakage, bias) runs concurrently on a bounded worker pool.
// Tier B (groundedness, hallucination, consistency, contradiction) runs
// afterwards, one check at a time. The split bounds the number of
// concurrent model calls; no tier B check reads tier A output.
//
// Failed checks become violations. A failed hard-fail check is a high
// severity violation and blocks the answer; any other failure leaves the
// answer retryable.
package judge
