package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go"
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"

	"github.com/svjt78/ragmesh/core"
)

// Serializers for records kept by key-value backends. Fields are encoded in
// declaration order; new fields may only be appended.
var (
	StringMUS    mus.Serializer[string]            = ord.String
	IntMUS       mus.Serializer[int]               = varint.Int
	TimeMUS      mus.Serializer[time.Time]         = timeSer{}
	StringMapMUS mus.Serializer[map[string]string] = mapOrNil[string, string]{ord.NewMapSer[string, string](ord.String, ord.String)}
	IntMapMUS    mus.Serializer[map[string]int]    = mapOrNil[string, int]{ord.NewMapSer[string, int](ord.String, varint.Int)}
	StringsMUS   mus.Serializer[[]string]          = sliceOrNil[string]{ord.NewSliceSer[string](ord.String)}
	VectorMUS    mus.Serializer[[]float32]         = sliceOrNil[float32]{ord.NewSliceSer[float32](raw.Float32)}

	DocumentMUS     mus.Serializer[core.Document]     = documentSer{}
	ChunkMUS        mus.Serializer[core.Chunk]        = chunkSer{}
	EntityMUS       mus.Serializer[core.Entity]       = entitySer{}
	RelationshipMUS mus.Serializer[core.Relationship] = relationshipSer{}
)

// Marshal encodes v with ser.
func Marshal[T any](ser mus.Serializer[T], v T) []byte {
	buf := make([]byte, ser.Size(v))
	ser.Marshal(v, buf)
	return buf
}

// Unmarshal decodes data with ser into a new T. Trailing bytes are an error.
func Unmarshal[T any](ser mus.Serializer[T], data []byte) (*T, error) {
	v, n, err := ser.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, err)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrSerializationFailed, len(data)-n)
	}
	return &v, nil
}

// Reader decodes consecutive fields, keeping the first error.
type Reader struct {
	bs  []byte
	n   int
	err error
}

// NewReader starts reading at the beginning of bs.
func NewReader(bs []byte) *Reader {
	return &Reader{bs: bs}
}

// Done returns the bytes consumed and the first error.
func (r *Reader) Done() (int, error) {
	return r.n, r.err
}

// Read decodes the next field with ser. After an error it returns zero values.
func Read[T any](r *Reader, ser mus.Serializer[T]) (v T) {
	if r.err != nil {
		return v
	}
	var n int
	v, n, r.err = ser.Unmarshal(r.bs[r.n:])
	r.n += n
	return v
}

// Write encodes v with ser at bs[n:] and returns the new offset.
func Write[T any](bs []byte, n int, ser mus.Serializer[T], v T) int {
	return n + ser.Marshal(v, bs[n:])
}

// timeSer writes a presence flag followed by UTC nanoseconds, so the zero
// time survives a round trip.
type timeSer struct{}

func (timeSer) Marshal(v time.Time, bs []byte) (n int) {
	if v.IsZero() {
		return ord.Bool.Marshal(false, bs)
	}
	n = ord.Bool.Marshal(true, bs)
	return n + raw.TimeUnixNanoUTC.Marshal(v, bs[n:])
}

func (timeSer) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	set, n, err := ord.Bool.Unmarshal(bs)
	if err != nil || !set {
		return v, n, err
	}
	v, n1, err := raw.TimeUnixNanoUTC.Unmarshal(bs[n:])
	return v, n + n1, err
}

func (timeSer) Size(v time.Time) int {
	if v.IsZero() {
		return ord.Bool.Size(false)
	}
	return ord.Bool.Size(true) + raw.TimeUnixNanoUTC.Size(v)
}

func (s timeSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// mapOrNil decodes an empty map as nil.
type mapOrNil[K comparable, V any] struct {
	ser mus.Serializer[map[K]V]
}

func (s mapOrNil[K, V]) Marshal(v map[K]V, bs []byte) int { return s.ser.Marshal(v, bs) }
func (s mapOrNil[K, V]) Size(v map[K]V) int { return s.ser.Size(v) }
func (s mapOrNil[K, V]) Skip(bs []byte) (int, error) { return s.ser.Skip(bs) }

func (s mapOrNil[K, V]) Unmarshal(bs []byte) (map[K]V, int, error) {
	v, n, err := s.ser.Unmarshal(bs)
	if len(v) == 0 {
		v = nil
	}
	return v, n, err
}

// sliceOrNil decodes an empty slice as nil.
type sliceOrNil[E any] struct {
	ser mus.Serializer[[]E]
}

func (s sliceOrNil[E]) Marshal(v []E, bs []byte) int { return s.ser.Marshal(v, bs) }
func (s sliceOrNil[E]) Size(v []E) int { return s.ser.Size(v) }
func (s sliceOrNil[E]) Skip(bs []byte) (int, error) { return s.ser.Skip(bs) }

func (s sliceOrNil[E]) Unmarshal(bs []byte) ([]E, int, error) {
	v, n, err := s.ser.Unmarshal(bs)
	if len(v) == 0 {
		v = nil
	}
	return v, n, err
}

// documentSer encodes a document header. Chunks and pages are stored
// separately or not at all.
type documentSer struct{}

func (documentSer) Marshal(v core.Document, bs []byte) (n int) {
	n = Write(bs, n, StringMUS, v.DocID)
	n = Write(bs, n, StringMUS, v.Filename)
	n = Write(bs, n, StringMUS, v.DocType)
	n = Write(bs, n, StringMUS, v.FormNumber)
	n = Write(bs, n, StringMUS, v.EffectiveDate)
	n = Write(bs, n, StringMUS, v.State)
	n = Write(bs, n, StringMapMUS, v.Metadata)
	n = Write(bs, n, TimeMUS, v.CreatedAt)
	return Write(bs, n, TimeMUS, v.IndexedAt)
}

func (documentSer) Unmarshal(bs []byte) (v core.Document, n int, err error) {
	r := NewReader(bs)
	v.DocID = Read(r, StringMUS)
	v.Filename = Read(r, StringMUS)
	v.DocType = Read(r, StringMUS)
	v.FormNumber = Read(r, StringMUS)
	v.EffectiveDate = Read(r, StringMUS)
	v.State = Read(r, StringMUS)
	v.Metadata = Read(r, StringMapMUS)
	v.CreatedAt = Read(r, TimeMUS)
	v.IndexedAt = Read(r, TimeMUS)
	n, err = r.Done()
	return v, n, err
}

func (documentSer) Size(v core.Document) int {
	return StringMUS.Size(v.DocID) +
		StringMUS.Size(v.Filename) +
		StringMUS.Size(v.DocType) +
		StringMUS.Size(v.FormNumber) +
		StringMUS.Size(v.EffectiveDate) +
		StringMUS.Size(v.State) +
		StringMapMUS.Size(v.Metadata) +
		TimeMUS.Size(v.CreatedAt) +
		TimeMUS.Size(v.IndexedAt)
}

func (s documentSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type chunkSer struct{}

func (chunkSer) Marshal(v core.Chunk, bs []byte) (n int) {
	n = Write(bs, n, StringMUS, v.ChunkID)
	n = Write(bs, n, StringMUS, v.DocID)
	n = Write(bs, n, StringMUS, v.Text)
	n = Write(bs, n, IntMUS, v.PageNo)
	n = Write(bs, n, IntMUS, v.CharStart)
	n = Write(bs, n, IntMUS, v.CharEnd)
	n = Write(bs, n, IntMUS, v.Tokens)
	n = Write(bs, n, StringMapMUS, v.Metadata)
	return Write(bs, n, VectorMUS, v.Vector)
}

func (chunkSer) Unmarshal(bs []byte) (v core.Chunk, n int, err error) {
	r := NewReader(bs)
	v.ChunkID = Read(r, StringMUS)
	v.DocID = Read(r, StringMUS)
	v.Text = Read(r, StringMUS)
	v.PageNo = Read(r, IntMUS)
	v.CharStart = Read(r, IntMUS)
	v.CharEnd = Read(r, IntMUS)
	v.Tokens = Read(r, IntMUS)
	v.Metadata = Read(r, StringMapMUS)
	v.Vector = Read(r, VectorMUS)
	n, err = r.Done()
	return v, n, err
}

func (chunkSer) Size(v core.Chunk) int {
	return StringMUS.Size(v.ChunkID) +
		StringMUS.Size(v.DocID) +
		StringMUS.Size(v.Text) +
		IntMUS.Size(v.PageNo) +
		IntMUS.Size(v.CharStart) +
		IntMUS.Size(v.CharEnd) +
		IntMUS.Size(v.Tokens) +
		StringMapMUS.Size(v.Metadata) +
		VectorMUS.Size(v.Vector)
}

func (s chunkSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type entitySer struct{}

func (entitySer) Marshal(v core.Entity, bs []byte) (n int) {
	n = Write(bs, n, StringMUS, v.NodeID)
	n = Write(bs, n, StringMUS, v.Label)
	n = Write(bs, n, StringMUS, v.Type)
	n = Write(bs, n, StringMapMUS, v.Properties)
	return Write(bs, n, StringsMUS, v.ChunkIDs)
}

func (entitySer) Unmarshal(bs []byte) (v core.Entity, n int, err error) {
	r := NewReader(bs)
	v.NodeID = Read(r, StringMUS)
	v.Label = Read(r, StringMUS)
	v.Type = Read(r, StringMUS)
	v.Properties = Read(r, StringMapMUS)
	v.ChunkIDs = Read(r, StringsMUS)
	n, err = r.Done()
	return v, n, err
}

func (entitySer) Size(v core.Entity) int {
	return StringMUS.Size(v.NodeID) +
		StringMUS.Size(v.Label) +
		StringMUS.Size(v.Type) +
		StringMapMUS.Size(v.Properties) +
		StringsMUS.Size(v.ChunkIDs)
}

func (s entitySer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type relationshipSer struct{}

func (relationshipSer) Marshal(v core.Relationship, bs []byte) (n int) {
	n = Write(bs, n, StringMUS, v.Source)
	n = Write(bs, n, StringMUS, v.Target)
	n = Write(bs, n, StringMUS, v.Type)
	n = Write(bs, n, StringMapMUS, v.Properties)
	return Write(bs, n, StringsMUS, v.EvidenceChunkIDs)
}

func (relationshipSer) Unmarshal(bs []byte) (v core.Relationship, n int, err error) {
	r := NewReader(bs)
	v.Source = Read(r, StringMUS)
	v.Target = Read(r, StringMUS)
	v.Type = Read(r, StringMUS)
	v.Properties = Read(r, StringMapMUS)
	v.EvidenceChunkIDs = Read(r, StringsMUS)
	n, err = r.Done()
	return v, n, err
}

func (relationshipSer) Size(v core.Relationship) int {
	return StringMUS.Size(v.Source) +
		StringMUS.Size(v.Target) +
		StringMUS.Size(v.Type) +
		StringMapMUS.Size(v.Properties) +
		StringsMUS.Size(v.EvidenceChunkIDs)
}

func (s relationshipSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
