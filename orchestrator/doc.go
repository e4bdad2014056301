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



// Package orchestrator runs the question answering pipeline end to end.
//
// A run moves through retrieval, fusion, context compilation, generation
// and, when the workflow includes it, judge validation. Every transition
// is appended to the run's event log and every stage output is saved as an
// artifact, so a run can be inspected after the fact. The status of a run
// is never stored; it is derived from the last terminal event in its log.
//
// In chat mode the orchestrator also resolves the conversation session,
// compacts its history before generation and records the exchange as a
// new turn once the run succeeds. Blocked runs are not recorded.
package orchestrator
