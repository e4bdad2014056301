package main

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/svjt78/ragmesh/core"
)

// corpusFile is the on-disk ingestion format. JSON files parse as well since
// YAML is a superset.
type corpusFile struct {
	Documents []*core.Document `yaml:"documents"`
}

var errEmptyCorpus = errors.New("corpus contains no documents")

// loadCorpus reads a file holding a list of documents, a single document, or
// a mapping with a documents key. Documents carry either chunks or raw pages.
func loadCorpus(path string) ([]*core.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseCorpus(data)
}

func parseCorpus(data []byte) ([]*core.Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, errEmptyCorpus
	}
	root := node.Content[0]

	var docs []*core.Document
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&docs); err != nil {
			return nil, err
		}
	case yaml.MappingNode:
		var corpus corpusFile
		if err := root.Decode(&corpus); err != nil {
			return nil, err
		}
		docs = corpus.Documents
		if len(docs) == 0 {
			var doc core.Document
			if err := root.Decode(&doc); err != nil {
				return nil, err
			}
			if doc.DocID != "" {
				docs = []*core.Document{&doc}
			}
		}
	default:
		return nil, fmt.Errorf("unexpected corpus layout at line %d", root.Line)
	}
	if len(docs) == 0 {
		return nil, errEmptyCorpus
	}

	for _, doc := range docs {
		if doc == nil {
			return nil, errEmptyCorpus
		}
		for i, chunk := range doc.Chunks {
			if chunk == nil {
				continue
			}
			if chunk.DocID == "" {
				chunk.DocID = doc.DocID
			}
			if chunk.ChunkID == "" {
				chunk.ChunkID = fmt.Sprintf("%s_p%d_%d", doc.DocID, chunk.PageNo, i)
			}
		}
		for i, page := range doc.Pages {
			if page != nil && page.PageNo == 0 {
				page.PageNo = i + 1
			}
		}
	}
	return docs, nil
}
