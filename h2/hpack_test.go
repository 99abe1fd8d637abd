package h2

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHPACKEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)

	fields := []HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/search"},
		{Name: "x-custom", Value: "value-one"},
		{Name: "authorization", Value: "Bearer secret", Sensitive: true},
	}
	block := enc.EncodeFields(nil, fields)

	var got []HeaderField
	require.NoError(t, dec.DecodeFields(block, func(f HeaderField) {
		got = append(got, f)
	}))

	require.Len(t, got, len(fields))
	for i, f := range fields {
		assert.Equal(t, f.Name, got[i].Name)
		assert.Equal(t, f.Value, got[i].Value)
	}
	assert.True(t, got[3].Sensitive, "never-indexed field must round-trip its sensitivity bit")
}

func TestHPACKIndexedStaticField(t *testing.T) {
	enc := NewEncoder(4096)
	dec := NewDecoder(4096)
	block := enc.EncodeFields(nil, []HeaderField{{Name: ":method", Value: "GET"}})
	// :method=GET is static table index 2, so the encoding should be a
	// single indexed-field byte (0x80 | 2).
	assert.Equal(t, []byte{0x82}, block)

	var got HeaderField
	require.NoError(t, dec.DecodeFields(block, func(f HeaderField) { got = f }))
	assert.Equal(t, ":method", got.Name)
	assert.Equal(t, "GET", got.Value)
}

func TestHPACKDynamicTableReuse(t *testing.T) {
	enc := NewEncoder(4096)
	fields := []HeaderField{{Name: "x-trace-id", Value: "abc123"}}
	first := enc.EncodeFields(nil, fields)
	second := enc.EncodeFields(nil, fields)
	// The second encode should reference the dynamic table entry added by
	// the first (a single indexed-field byte), so it must be much shorter
	// than the first literal encoding.
	assert.Less(t, len(second), len(first))
}

func TestHPACKDynamicTableEviction(t *testing.T) {
	dyn := newDynamicTable(40) // only room for one small entry plus overhead
	dyn.add(HeaderField{Name: "a", Value: "1"})
	dyn.add(HeaderField{Name: "b", Value: "2"})
	assert.LessOrEqual(t, dyn.size, 40)
	assert.Equal(t, 1, len(dyn.entries), "oldest entry should have been evicted")
}

func TestHuffmanRoundTrip(t *testing.T) {
	for _, s := range []string{"", "www.example.com", "no-cache", "custom-value-123"} {
		enc := huffmanEncode(s)
		dec, err := huffmanDecode(enc)
		require.NoError(t, err)
		assert.Equal(t, s, dec)
	}
}
