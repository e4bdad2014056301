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

// Key layout. Every component is separated by sep so that prefix scans over
// one id never match a longer id sharing its prefix.
const (
	sep = "\x00"

	documentPrefix   = "doc" + sep // doc id -> core.Document without chunks
	chunkPrefix      = "chk" + sep // chunk id -> core.Chunk
	docChunkPrefix   = "dch" + sep // doc id, chunk id -> empty
	vectorPrefix     = "vec" + sep // chunk id -> vectorRecord
	postingPrefix    = "kwp" + sep // term, chunk id -> term frequency
	keywordDocPrefix = "kwd" + sep // chunk id -> keywordDoc
	keywordStatsKey  = "kws"       // corpus statistics
	entityPrefix     = "ent" + sep // node id -> core.Entity
	relationPrefix   = "rel" + sep // source, type, target -> core.Relationship
	adjacencyPrefix  = "adj" + sep // node id, relation id -> empty
)

func makeDocumentKey(docID string) []byte {
	return []byte(documentPrefix + docID)
}

func makeChunkKey(chunkID string) []byte {
	return []byte(chunkPrefix + chunkID)
}

// makeDocChunkKey indexes a chunk under its document.
// Format: prefix:docID:chunkID
func makeDocChunkKey(docID, chunkID string) []byte {
	return []byte(docChunkPrefix + docID + sep + chunkID)
}

func makePartialDocChunkKey(docID string) []byte {
	return []byte(docChunkPrefix + docID + sep)
}

func makeVectorKey(chunkID string) []byte {
	return []byte(vectorPrefix + chunkID)
}

// makePostingKey indexes a chunk under a term.
// Format: prefix:term:chunkID
func makePostingKey(term, chunkID string) []byte {
	return []byte(postingPrefix + term + sep + chunkID)
}

func makePartialPostingKey(term string) []byte {
	return []byte(postingPrefix + term + sep)
}

func makeKeywordDocKey(chunkID string) []byte {
	return []byte(keywordDocPrefix + chunkID)
}

func makeEntityKey(nodeID string) []byte {
	return []byte(entityPrefix + nodeID)
}

// relationID identifies an edge by its endpoints and type.
func relationID(source, relType, target string) string {
	return source + sep + relType + sep + target
}

func makeRelationKey(relID string) []byte {
	return []byte(relationPrefix + relID)
}

// makeAdjacencyKey indexes an edge under one of its endpoints.
// Format: prefix:nodeID:relationID
func makeAdjacencyKey(nodeID, relID string) []byte {
	return []byte(adjacencyPrefix + nodeID + sep + relID)
}

func makePartialAdjacencyKey(nodeID string) []byte {
	return []byte(adjacencyPrefix + nodeID + sep)
}

// suffixAfter returns the part of key following prefix.
func suffixAfter(key, prefix []byte) string {
	return string(key[len(prefix):])
}
