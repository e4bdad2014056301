package badger

import (
	"context"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// GraphStore implements storage.GraphStore with an adjacency index.
type GraphStore struct {
	backend *Backend
}

var _ storage.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates a GraphStore.
func NewGraphStore(backend *Backend) *GraphStore {
	return &GraphStore{backend: backend}
}

// AddEntities stores or merges entities.
func (s *GraphStore) AddEntities(ctx context.Context, entities ...*core.Entity) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, e := range entities {
			key := makeEntityKey(e.NodeID)
			existing, err := getValue(tx, key, storage.EntityMUS)
			if err != nil {
				return err
			}
			merged := *e
			if existing != nil {
				merged.ChunkIDs = union(existing.ChunkIDs, e.ChunkIDs)
				merged.Properties = overlay(existing.Properties, e.Properties)
			}
			if err := setValue(tx, key, storage.EntityMUS, merged); err != nil {
				return err
			}
		}
		return nil
	})
}

// AddRelationships stores or merges edges and indexes both endpoints.
func (s *GraphStore) AddRelationships(ctx context.Context, rels ...*core.Relationship) error {
	return s.backend.Update(func(tx *badger.Txn) error {
		for _, r := range rels {
			id := relationID(r.Source, r.Type, r.Target)
			key := makeRelationKey(id)
			existing, err := getValue(tx, key, storage.RelationshipMUS)
			if err != nil {
				return err
			}
			merged := *r
			if existing != nil {
				merged.EvidenceChunkIDs = union(existing.EvidenceChunkIDs, r.EvidenceChunkIDs)
				merged.Properties = overlay(existing.Properties, r.Properties)
			}
			if err := setValue(tx, key, storage.RelationshipMUS, merged); err != nil {
				return err
			}
			if err := tx.Set(makeAdjacencyKey(r.Source, id), nil); err != nil {
				return err
			}
			if err := tx.Set(makeAdjacencyKey(r.Target, id), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// FindEntities filters entities by label and type, case-insensitively.
func (s *GraphStore) FindEntities(ctx context.Context, labels, types []string) ([]*core.Entity, error) {
	labelSet := lowerSet(labels)
	typeSet := lowerSet(types)

	var found []*core.Entity
	err := s.backend.View(func(tx *badger.Txn) error {
		return scanValues(tx, []byte(entityPrefix), storage.EntityMUS, func(e *core.Entity) error {
			if len(labelSet) > 0 && !labelSet[strings.ToLower(e.Label)] {
				return nil
			}
			if len(typeSet) > 0 && !typeSet[strings.ToLower(e.Type)] {
				return nil
			}
			found = append(found, e)
			return nil
		})
	})
	return found, err
}

// QuerySubgraph walks up to maxHops undirected hops from the seeds.
// Nodes are returned in discovery order. Unknown seeds are ignored.
func (s *GraphStore) QuerySubgraph(ctx context.Context, seedIDs []string, maxHops int) (*core.Subgraph, error) {
	sub := &core.Subgraph{Nodes: []*core.Entity{}, Edges: []*core.Relationship{}}

	err := s.backend.View(func(tx *badger.Txn) error {
		visited := make(map[string]bool)
		var frontier []string
		for _, id := range seedIDs {
			if visited[id] {
				continue
			}
			e, err := getValue(tx, makeEntityKey(id), storage.EntityMUS)
			if err != nil {
				return err
			}
			if e == nil {
				continue
			}
			visited[id] = true
			sub.Nodes = append(sub.Nodes, e)
			frontier = append(frontier, id)
		}

		edges := make(map[string]*core.Relationship)
		var edgeOrder []string
		for hop := 0; hop < maxHops && len(frontier) > 0; hop++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			var next []string
			for _, nodeID := range frontier {
				rels, err := s.relationsOf(tx, nodeID)
				if err != nil {
					return err
				}
				for _, r := range rels {
					id := relationID(r.Source, r.Type, r.Target)
					if _, ok := edges[id]; !ok {
						edges[id] = r
						edgeOrder = append(edgeOrder, id)
					}
					neighbor := r.Target
					if neighbor == nodeID {
						neighbor = r.Source
					}
					if visited[neighbor] {
						continue
					}
					e, err := getValue(tx, makeEntityKey(neighbor), storage.EntityMUS)
					if err != nil {
						return err
					}
					if e == nil {
						continue
					}
					visited[neighbor] = true
					sub.Nodes = append(sub.Nodes, e)
					next = append(next, neighbor)
				}
			}
			frontier = next
		}

		for _, id := range edgeOrder {
			r := edges[id]
			if visited[r.Source] && visited[r.Target] {
				sub.Edges = append(sub.Edges, r)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetSupportingChunks unions the chunk ids of the entities in request order.
func (s *GraphStore) GetSupportingChunks(ctx context.Context, entityIDs []string) ([]string, error) {
	var chunkIDs []string
	err := s.backend.View(func(tx *badger.Txn) error {
		for _, id := range entityIDs {
			e, err := getValue(tx, makeEntityKey(id), storage.EntityMUS)
			if err != nil {
				return err
			}
			if e != nil {
				chunkIDs = union(chunkIDs, e.ChunkIDs)
			}
		}
		return nil
	})
	return chunkIDs, err
}

func (s *GraphStore) relationsOf(tx *badger.Txn, nodeID string) ([]*core.Relationship, error) {
	prefix := makePartialAdjacencyKey(nodeID)
	var rels []*core.Relationship
	err := scanPrefix(tx, prefix, false, func(key, _ []byte) error {
		r, err := getValue(tx, makeRelationKey(suffixAfter(key, prefix)), storage.RelationshipMUS)
		if err != nil {
			return err
		}
		if r != nil {
			rels = append(rels, r)
		}
		return nil
	})
	return rels, err
}

// union appends the members of b missing from a, preserving order.
func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func overlay(base, top map[string]string) map[string]string {
	if len(base) == 0 {
		return top
	}
	out := make(map[string]string, len(base)+len(top))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		out[k] = v
	}
	return out
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
