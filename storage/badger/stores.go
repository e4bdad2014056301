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


package badger

import "errors"

// Stores bundles every BadgerDB-backed store sharing one Backend.
type Stores struct {
	Backend   *Backend
	Documents *DocumentStore
	Vectors   *VectorStore
	Keywords  *KeywordStore
	Graph     *GraphStore
}

// NewStores creates all stores over an open backend.
func NewStores(backend *Backend) *Stores {
	return &Stores{
		Backend:   backend,
		Documents: NewDocumentStore(backend),
		Vectors:   NewVectorStore(backend),
		Keywords:  NewKeywordStore(backend),
		Graph:     NewGraphStore(backend),
	}
}

// OpenStores opens a backend at path and creates all stores over it.
func OpenStores(path string) (*Stores, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	return NewStores(backend), nil
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must Close the returned Stores when done.
func NewMemoryStores() (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}
	return NewStores(backend), nil
}

// Close closes the shared backend.
func (s *Stores) Close() error {
	if s.Backend == nil {
		return errors.New("stores not open")
	}
	return s.Backend.Close()
}
