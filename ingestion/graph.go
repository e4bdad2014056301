package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/svjt78/ragmesh/ai"
	"github.com/svjt78/ragmesh/core"
	"github.com/svjt78/ragmesh/storage"
)

// defaultRelationshipType is used when the model omits an edge type.
const defaultRelationshipType = "RELATES_TO"

// NodeID returns the deterministic graph node id of an entity. The same
// label and type always map to the same node, whichever chunk mentions it.
func NodeID(entityType, label string) string {
	return core.ContentHash("(" + entityType + "," + strings.ToLower(strings.TrimSpace(label)) + ")")
}

// graphProcessor extracts entities from chunks and merges them into the graph.
type graphProcessor struct {
	graph       storage.GraphStore
	extractor   ai.EntityExtractor
	entityTypes []string
	logger      *slog.Logger
}

var _ processor = (*graphProcessor)(nil)

// newGraphProcessor creates a new graph processor.
func newGraphProcessor(graph storage.GraphStore, extractor ai.EntityExtractor, entityTypes []string, logger *slog.Logger) (processor, error) {
	if graph == nil {
		return nil, ErrGraphStoreRequired
	}
	if extractor == nil {
		return nil, fmt.Errorf("entity extractor required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &graphProcessor{
		graph:       graph,
		extractor:   extractor,
		entityTypes: entityTypes,
		logger:      logger.With("processor", "graph"),
	}, nil
}

// process extracts entities chunk by chunk. A failed extraction skips that
// chunk; everything extracted from the others is still stored and the
// failures are returned joined.
func (gp *graphProcessor) process(ctx context.Context, chunks []*core.Chunk) error {
	gp.logger.Info("processing chunks for entities", "chunks", len(chunks))

	entities := make(map[string]*core.Entity)
	var entityOrder []string
	edges := make(map[string]*core.Relationship)
	var edgeOrder []string
	var extractionErrors []error

	for _, chunk := range chunks {
		extraction, err := gp.extractor.ExtractEntities(ctx, chunk.Text, gp.entityTypes)
		if err != nil {
			extractionErrors = append(extractionErrors, fmt.Errorf("chunk %s extraction failed: %w", chunk.ChunkID, err))
			continue
		}
		if extraction == nil {
			continue
		}

		// Relationships name entities by model-local id or by label.
		local := make(map[string]string)
		for _, e := range extraction.Entities {
			label := strings.TrimSpace(e.Label)
			if label == "" || e.Type == "" {
				continue
			}
			id := NodeID(e.Type, label)
			if e.ID != "" {
				local[e.ID] = id
			}
			local[strings.ToLower(label)] = id

			node, ok := entities[id]
			if !ok {
				node = &core.Entity{NodeID: id, Label: label, Type: e.Type, Properties: map[string]string{}}
				entities[id] = node
				entityOrder = append(entityOrder, id)
			}
			for k, v := range e.Properties {
				node.Properties[k] = v
			}
			if !slices.Contains(node.ChunkIDs, chunk.ChunkID) {
				node.ChunkIDs = append(node.ChunkIDs, chunk.ChunkID)
			}
		}

		for _, r := range extraction.Relationships {
			source, okSource := resolve(local, r.Source)
			target, okTarget := resolve(local, r.Target)
			if !okSource || !okTarget || source == target {
				gp.logger.Debug("dropping relationship with unknown endpoint", "source", r.Source, "target", r.Target)
				continue
			}
			edgeType := strings.ToUpper(strings.TrimSpace(r.Type))
			if edgeType == "" {
				edgeType = defaultRelationshipType
			}
			key := source + "|" + edgeType + "|" + target
			edge, ok := edges[key]
			if !ok {
				edge = &core.Relationship{Source: source, Target: target, Type: edgeType, Properties: r.Properties}
				edges[key] = edge
				edgeOrder = append(edgeOrder, key)
			}
			if !slices.Contains(edge.EvidenceChunkIDs, chunk.ChunkID) {
				edge.EvidenceChunkIDs = append(edge.EvidenceChunkIDs, chunk.ChunkID)
			}
		}
	}

	if len(entityOrder) > 0 {
		nodes := make([]*core.Entity, len(entityOrder))
		for i, id := range entityOrder {
			nodes[i] = entities[id]
		}
		if err := gp.graph.AddEntities(ctx, nodes...); err != nil {
			extractionErrors = append(extractionErrors, fmt.Errorf("storing entities failed: %w", err))
		}
	}
	if len(edgeOrder) > 0 {
		rels := make([]*core.Relationship, len(edgeOrder))
		for i, key := range edgeOrder {
			rels[i] = edges[key]
		}
		if err := gp.graph.AddRelationships(ctx, rels...); err != nil {
			extractionErrors = append(extractionErrors, fmt.Errorf("storing relationships failed: %w", err))
		}
	}

	gp.logger.Debug("graph updated", "entities", len(entityOrder), "relationships", len(edgeOrder))
	if len(extractionErrors) > 0 {
		return errors.Join(extractionErrors...)
	}
	return nil
}

func resolve(local map[string]string, ref string) (string, bool) {
	if id, ok := local[ref]; ok {
		return id, true
	}
	id, ok := local[strings.ToLower(strings.TrimSpace(ref))]
	return id, ok
}
