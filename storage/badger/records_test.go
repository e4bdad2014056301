package badger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/svjt78/ragmesh/storage"
)

func TestRecords_RoundTrip(t *testing.T) {
	vec := vectorRecord{
		ChunkID:  "ho3_p1_c000",
		DocID:    "ho3",
		Text:     "Dwelling coverage applies.",
		Metadata: map[string]string{"form_number": "HO-3"},
		Vector:   []float32{0.25, -0.5, 1},
	}
	gotVec, err := storage.Unmarshal(vectorRecordMUS, storage.Marshal(vectorRecordMUS, vec))
	require.NoError(t, err)
	assert.Equal(t, vec, *gotVec)

	kw := keywordDoc{
		ChunkID: "ho3_p1_c000",
		DocID:   "ho3",
		Text:    "Dwelling coverage applies.",
		Length:  3,
		Terms:   map[string]int{"dwelling": 1, "coverage": 1, "applies": 1},
	}
	gotKw, err := storage.Unmarshal(keywordDocMUS, storage.Marshal(keywordDocMUS, kw))
	require.NoError(t, err)
	assert.Equal(t, kw, *gotKw)
	assert.Nil(t, gotKw.Metadata)
}

func TestRecords_Truncated(t *testing.T) {
	data := storage.Marshal(keywordStatsMUS, keywordStats{Docs: 300, TotalLength: 90000})

	_, err := storage.Unmarshal(keywordStatsMUS, data[:1])
	assert.ErrorIs(t, err, storage.ErrSerializationFailed)
}
