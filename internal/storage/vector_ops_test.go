package storage

import (
	"math"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/philippgille/chromem-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/legalbrain/pkg/types"
)

func TestSerializeVector(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{"empty", []float32{}},
		{"simple", []float32{1, 2, 3}},
		{"negative and fractional", []float32{-0.5, 0.25, -1e-6}},
		{"special values", []float32{float32(math.Inf(1)), float32(math.Inf(-1)), 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob := serializeVector(tt.vector)
			assert.Len(t, blob, len(tt.vector)*4)
			assert.Equal(t, tt.vector, deserializeVector(blob))
		})
	}
}

func TestSerializeVector_LittleEndian(t *testing.T) {
	// 1.0 is 0x3f800000
	assert.Equal(t, []byte{0x00, 0x00, 0x80, 0x3f}, serializeVector([]float32{1}))
}

func TestSortCandidates_Stable(t *testing.T) {
	candidates := []Match{
		{ID: chunkID("a", 0), Score: 0.2},
		{ID: chunkID("a", 1), Score: 0.9},
		{ID: chunkID("b", 0), Score: 0.2},
		{ID: chunkID("b", 1), Score: 0.9},
	}

	sortCandidates(candidates)

	got := make([]types.ChunkID, len(candidates))
	for i, c := range candidates {
		got[i] = c.ID
	}
	assert.Equal(t, []types.ChunkID{chunkID("a", 1), chunkID("b", 1), chunkID("a", 0), chunkID("b", 0)}, got)
}

func TestDocumentExpr(t *testing.T) {
	assert.Equal(t, `document_id == "lease-2024"`, documentExpr("lease-2024"))
	assert.Equal(t, `document_id == "a\"b\\c"`, documentExpr(`a"b\c`))
}

func TestRecordColumns(t *testing.T) {
	records := []Record{
		{ID: chunkID("lease", 0), Vector: []float32{1, 0}, Metadata: meta("rent", 3)},
		{ID: chunkID("lease", 1), Vector: []float32{0, 1}, Metadata: meta("deposit", 0)},
	}

	cols := recordColumns(records, 2)
	require.Len(t, cols, 10)

	byName := make(map[string]entity.Column, len(cols))
	for _, c := range cols {
		assert.Equal(t, 2, c.Len(), "column %s", c.Name())
		byName[c.Name()] = c
	}

	ids := byName[fieldID].(*entity.ColumnVarChar).Data()
	assert.Equal(t, []string{"lease#0", "lease#1"}, ids)

	pages := byName[fieldPage].(*entity.ColumnInt64).Data()
	assert.Equal(t, []int64{3, 0}, pages)
}

func TestDecodeColumns(t *testing.T) {
	fields := []entity.Column{
		entity.NewColumnVarChar(fieldDocumentID, []string{"lease", "nda"}),
		entity.NewColumnInt64(fieldChunkIndex, []int64{4, 0}),
		entity.NewColumnInt64(fieldPage, []int64{2, 0}),
		entity.NewColumnInt64(fieldCharStart, []int64{100, 0}),
		entity.NewColumnInt64(fieldCharEnd, []int64{180, 40}),
		entity.NewColumnInt64(fieldTokens, []int64{20, 10}),
		entity.NewColumnVarChar(fieldContent, []string{"rent clause", "confidentiality"}),
		entity.NewColumnVarChar(fieldSource, []string{"lease.pdf", ""}),
	}

	matches, err := decodeColumns(2, []float32{0.9, 0.4}, fields)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, chunkID("lease", 4), matches[0].ID)
	assert.InDelta(t, 0.9, matches[0].Score, 1e-6)
	assert.Equal(t, 2, *matches[0].Metadata.PageNumber)
	assert.Equal(t, 100, matches[0].Metadata.CharStart)
	assert.Equal(t, "lease.pdf", matches[0].Metadata.Source)

	assert.Equal(t, chunkID("nda", 0), matches[1].ID)
	assert.Nil(t, matches[1].Metadata.PageNumber, "page 0 means no page")
	assert.Equal(t, "confidentiality", matches[1].Metadata.Content)

	_, err = decodeColumns(3, []float32{0.9, 0.4}, fields)
	assert.Error(t, err)
}

func TestChunkSchema(t *testing.T) {
	schema := chunkSchema("legal_chunks", 384)

	assert.Equal(t, "legal_chunks", schema.CollectionName)
	require.Len(t, schema.Fields, 10)
	assert.True(t, schema.Fields[0].PrimaryKey)
	assert.Equal(t, fieldEmbedding, schema.Fields[9].Name)
	assert.Equal(t, "384", schema.Fields[9].TypeParams[entity.TypeParamDim])
}

func TestChromemMetadataRoundTrip(t *testing.T) {
	id := chunkID("lease", 7)
	m := meta("notice", 5)

	r := chromem.Result{
		ID:         id.String(),
		Metadata:   encodeMetadata(id, m),
		Content:    m.Content,
		Similarity: 0.5,
	}

	got, err := decodeResult(r)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, m, got.Metadata)
	assert.InDelta(t, 0.5, got.Score, 1e-6)
}

func TestChromemDecodeResult_Invalid(t *testing.T) {
	_, err := decodeResult(chromem.Result{
		ID:       "lease#0",
		Metadata: map[string]string{keyDocumentID: "lease", keyChunkIndex: "x"},
	})
	assert.Error(t, err)
}
