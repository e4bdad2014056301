// Package chunking splits extracted page text into retrievable chunks.
//
// Text is split on paragraph, then sentence, then word boundaries until each
// piece fits the profile's token budget; consecutive pieces of a section
// share up to ChunkOverlap tokens. Page-aware profiles chunk every page on
// its own so chunks never straddle a page break.
package chunking
