package badger

import (
	"github.com/mus-format/mus-go"

	"github.com/svjt78/ragmesh/storage"
)

var (
	vectorRecordMUS mus.Serializer[vectorRecord] = vectorRecordSer{}
	keywordDocMUS   mus.Serializer[keywordDoc]   = keywordDocSer{}
	keywordStatsMUS mus.Serializer[keywordStats] = keywordStatsSer{}
)

type vectorRecordSer struct{}

func (vectorRecordSer) Marshal(v vectorRecord, bs []byte) (n int) {
	n = storage.Write(bs, n, storage.StringMUS, v.ChunkID)
	n = storage.Write(bs, n, storage.StringMUS, v.DocID)
	n = storage.Write(bs, n, storage.StringMUS, v.Text)
	n = storage.Write(bs, n, storage.StringMapMUS, v.Metadata)
	return storage.Write(bs, n, storage.VectorMUS, v.Vector)
}

func (vectorRecordSer) Unmarshal(bs []byte) (v vectorRecord, n int, err error) {
	r := storage.NewReader(bs)
	v.ChunkID = storage.Read(r, storage.StringMUS)
	v.DocID = storage.Read(r, storage.StringMUS)
	v.Text = storage.Read(r, storage.StringMUS)
	v.Metadata = storage.Read(r, storage.StringMapMUS)
	v.Vector = storage.Read(r, storage.VectorMUS)
	n, err = r.Done()
	return v, n, err
}

func (vectorRecordSer) Size(v vectorRecord) int {
	return storage.StringMUS.Size(v.ChunkID) +
		storage.StringMUS.Size(v.DocID) +
		storage.StringMUS.Size(v.Text) +
		storage.StringMapMUS.Size(v.Metadata) +
		storage.VectorMUS.Size(v.Vector)
}

func (s vectorRecordSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type keywordDocSer struct{}

func (keywordDocSer) Marshal(v keywordDoc, bs []byte) (n int) {
	n = storage.Write(bs, n, storage.StringMUS, v.ChunkID)
	n = storage.Write(bs, n, storage.StringMUS, v.DocID)
	n = storage.Write(bs, n, storage.StringMUS, v.Text)
	n = storage.Write(bs, n, storage.StringMapMUS, v.Metadata)
	n = storage.Write(bs, n, storage.IntMUS, v.Length)
	return storage.Write(bs, n, storage.IntMapMUS, v.Terms)
}

func (keywordDocSer) Unmarshal(bs []byte) (v keywordDoc, n int, err error) {
	r := storage.NewReader(bs)
	v.ChunkID = storage.Read(r, storage.StringMUS)
	v.DocID = storage.Read(r, storage.StringMUS)
	v.Text = storage.Read(r, storage.StringMUS)
	v.Metadata = storage.Read(r, storage.StringMapMUS)
	v.Length = storage.Read(r, storage.IntMUS)
	v.Terms = storage.Read(r, storage.IntMapMUS)
	n, err = r.Done()
	return v, n, err
}

func (keywordDocSer) Size(v keywordDoc) int {
	return storage.StringMUS.Size(v.ChunkID) +
		storage.StringMUS.Size(v.DocID) +
		storage.StringMUS.Size(v.Text) +
		storage.StringMapMUS.Size(v.Metadata) +
		storage.IntMUS.Size(v.Length) +
		storage.IntMapMUS.Size(v.Terms)
}

func (s keywordDocSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

type keywordStatsSer struct{}

func (keywordStatsSer) Marshal(v keywordStats, bs []byte) (n int) {
	n = storage.Write(bs, n, storage.IntMUS, v.Docs)
	return storage.Write(bs, n, storage.IntMUS, v.TotalLength)
}

func (keywordStatsSer) Unmarshal(bs []byte) (v keywordStats, n int, err error) {
	r := storage.NewReader(bs)
	v.Docs = storage.Read(r, storage.IntMUS)
	v.TotalLength = storage.Read(r, storage.IntMUS)
	n, err = r.Done()
	return v, n, err
}

func (keywordStatsSer) Size(v keywordStats) int {
	return storage.IntMUS.Size(v.Docs) + storage.IntMUS.Size(v.TotalLength)
}

func (s keywordStatsSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
