package h2

import (
	"errors"
	"fmt"

	"github.com/corehttp/corehttp/headers"
)

// HeaderField is one name/value pair as carried on the wire, with its
// "do not index" sensitivity bit (used for header fields the caller marks
// confidential, e.g. Authorization).
type HeaderField struct {
	Name, Value string
	Sensitive   bool
}

// staticTable is the fixed 61-entry table of RFC 7541 Appendix A.
var staticTable = []HeaderField{
	{Name: ":authority"},
	{Name: ":method", Value: "GET"},
	{Name: ":method", Value: "POST"},
	{Name: ":path", Value: "/"},
	{Name: ":path", Value: "/index.html"},
	{Name: ":scheme", Value: "http"},
	{Name: ":scheme", Value: "https"},
	{Name: ":status", Value: "200"},
	{Name: ":status", Value: "204"},
	{Name: ":status", Value: "206"},
	{Name: ":status", Value: "304"},
	{Name: ":status", Value: "400"},
	{Name: ":status", Value: "404"},
	{Name: ":status", Value: "500"},
	{Name: "accept-charset"},
	{Name: "accept-encoding", Value: "gzip, deflate"},
	{Name: "accept-language"},
	{Name: "accept-ranges"},
	{Name: "accept"},
	{Name: "access-control-allow-origin"},
	{Name: "age"},
	{Name: "allow"},
	{Name: "authorization"},
	{Name: "cache-control"},
	{Name: "content-disposition"},
	{Name: "content-encoding"},
	{Name: "content-language"},
	{Name: "content-length"},
	{Name: "content-location"},
	{Name: "content-range"},
	{Name: "content-type"},
	{Name: "cookie"},
	{Name: "date"},
	{Name: "etag"},
	{Name: "expect"},
	{Name: "expires"},
	{Name: "from"},
	{Name: "host"},
	{Name: "if-match"},
	{Name: "if-modified-since"},
	{Name: "if-none-match"},
	{Name: "if-range"},
	{Name: "if-unmodified-since"},
	{Name: "last-modified"},
	{Name: "link"},
	{Name: "location"},
	{Name: "max-forwards"},
	{Name: "proxy-authenticate"},
	{Name: "proxy-authorization"},
	{Name: "range"},
	{Name: "referer"},
	{Name: "refresh"},
	{Name: "retry-after"},
	{Name: "server"},
	{Name: "set-cookie"},
	{Name: "strict-transport-security"},
	{Name: "transfer-encoding"},
	{Name: "user-agent"},
	{Name: "vary"},
	{Name: "via"},
	{Name: "www-authenticate"},
}

// dynamicTableEntryOverhead is the RFC 7541 §4.1 size accounting constant
// added to name+value byte length for every dynamic table entry.
const dynamicTableEntryOverhead = 32

// dynamicTable is the per-connection/per-direction HPACK dynamic table: a
// FIFO of recently (de)coded header fields, evicted oldest-first to honor
// a byte-size budget set by SETTINGS_HEADER_TABLE_SIZE.
type dynamicTable struct {
	entries  []HeaderField // entries[0] is the most recently added
	size     int
	maxSize  int
}

func newDynamicTable(maxSize int) *dynamicTable {
	return &dynamicTable{maxSize: maxSize}
}

func (t *dynamicTable) add(f HeaderField) {
	entrySize := len(f.Name) + len(f.Value) + dynamicTableEntryOverhead
	t.entries = append([]HeaderField{f}, t.entries...)
	t.size += entrySize
	t.evict()
}

func (t *dynamicTable) evict() {
	for t.size > t.maxSize && len(t.entries) > 0 {
		last := t.entries[len(t.entries)-1]
		t.entries = t.entries[:len(t.entries)-1]
		t.size -= len(last.Name) + len(last.Value) + dynamicTableEntryOverhead
	}
}

func (t *dynamicTable) setMaxSize(n int) {
	t.maxSize = n
	t.evict()
}

// at returns the dynamic-table entry at HPACK index i (1-based within the
// dynamic table's own numbering, i.e. already offset by staticTableSize by
// the caller).
func (t *dynamicTable) at(i int) (HeaderField, bool) {
	if i < 1 || i > len(t.entries) {
		return HeaderField{}, false
	}
	return t.entries[i-1], true
}

var staticTableSize = len(staticTable)

func lookupIndexed(i int, dyn *dynamicTable) (HeaderField, bool) {
	if i >= 1 && i <= staticTableSize {
		return staticTable[i-1], true
	}
	return dyn.at(i - staticTableSize)
}

// Encoder serializes header field lists into HPACK-encoded block
// fragments, maintaining its own dynamic table across calls (§4.5:
// "decoder and encoder each maintain their own independent dynamic
// table").
type Encoder struct {
	dyn               *dynamicTable
	pendingTableSizeUpdate bool
	newMaxSize        int
}

// NewEncoder builds an Encoder with the given initial dynamic table
// capacity (SETTINGS_HEADER_TABLE_SIZE the peer advertised to us).
func NewEncoder(maxTableSize int) *Encoder {
	return &Encoder{dyn: newDynamicTable(maxTableSize)}
}

// SetMaxDynamicTableSize resizes the table, emitting a dynamic table size
// update at the next EncodeFields call.
func (e *Encoder) SetMaxDynamicTableSize(n int) {
	e.pendingTableSizeUpdate = true
	e.newMaxSize = n
}

// EncodeFields appends the HPACK encoding of fields to dst and returns the
// extended slice. Fields marked Sensitive use "never indexed" literal
// representation (RFC 7541 §6.2.3) so intermediaries (and this encoder's
// own table) never cache them.
func (e *Encoder) EncodeFields(dst []byte, fields []HeaderField) []byte {
	if e.pendingTableSizeUpdate {
		dst = appendInt(dst, 0x20, 5, uint64(e.newMaxSize))
		e.dyn.setMaxSize(e.newMaxSize)
		e.pendingTableSizeUpdate = false
	}
	for _, f := range fields {
		dst = e.encodeField(dst, f)
	}
	return dst
}

func (e *Encoder) encodeField(dst []byte, f HeaderField) []byte {
	if idx, fullMatch := e.findMatch(f); idx > 0 {
		if fullMatch {
			return appendInt(dst, 0x80, 7, uint64(idx))
		}
		return e.encodeLiteralWithNameIndex(dst, idx, f)
	}
	return e.encodeLiteralNewName(dst, f)
}

func (e *Encoder) findMatch(f HeaderField) (index int, fullMatch bool) {
	for i, sf := range staticTable {
		if sf.Name == f.Name {
			if sf.Value == f.Value {
				return i + 1, true
			}
			if index == 0 {
				index = i + 1
			}
		}
	}
	for i, df := range e.dyn.entries {
		if df.Name == f.Name {
			if df.Value == f.Value {
				return staticTableSize + i + 1, true
			}
			if index == 0 {
				index = staticTableSize + i + 1
			}
		}
	}
	return index, false
}

func (e *Encoder) encodeLiteralWithNameIndex(dst []byte, nameIndex int, f HeaderField) []byte {
	prefixByte, addToTable := literalPrefix(f.Sensitive)
	prefixBits := 4
	if addToTable {
		prefixBits = 6
	}
	dst = appendInt(dst, prefixByte, prefixBits, uint64(nameIndex))
	dst = appendHuffmanString(dst, f.Value)
	if addToTable {
		e.dyn.add(f)
	}
	return dst
}

func (e *Encoder) encodeLiteralNewName(dst []byte, f HeaderField) []byte {
	prefixByte, addToTable := literalPrefix(f.Sensitive)
	dst = append(dst, byteWithIndexZero(prefixByte))
	dst = appendHuffmanString(dst, f.Name)
	dst = appendHuffmanString(dst, f.Value)
	if addToTable {
		e.dyn.add(f)
	}
	return dst
}

// literalPrefix returns the representation's high-nibble prefix byte and
// whether the field should be added to the dynamic table: "incremental
// indexing" (0x40) for normal fields, "never indexed" (0x10) for
// sensitive ones (RFC 7541 §6.2.1, §6.2.3).
func literalPrefix(sensitive bool) (byte, bool) {
	if sensitive {
		return 0x10, false
	}
	return 0x40, true
}

func byteWithIndexZero(prefixByte byte) byte { return prefixByte }

// DecodingCallback receives each decoded header field in wire order.
type DecodingCallback func(f HeaderField)

// Decoder parses HPACK-encoded block fragments, maintaining the peer
// dynamic table.
type Decoder struct {
	dyn *dynamicTable
}

// NewDecoder builds a Decoder with the given initial dynamic table
// capacity (our own SETTINGS_HEADER_TABLE_SIZE, since we are decoding what
// the peer encoded against the value we advertised).
func NewDecoder(maxTableSize int) *Decoder {
	return &Decoder{dyn: newDynamicTable(maxTableSize)}
}

// SetMaxDynamicTableSize applies a local table-size change (e.g. our own
// SETTINGS changed); does not affect in-flight encoded blocks, which carry
// their own size-update instructions.
func (d *Decoder) SetMaxDynamicTableSize(n int) {
	d.dyn.setMaxSize(n)
}

var errHPACKTruncated = errors.New("h2: truncated HPACK block")
var errHPACKBadIndex = errors.New("h2: HPACK index out of range")

// DecodeFields parses block, invoking cb for each field in order.
func (d *Decoder) DecodeFields(block []byte, cb DecodingCallback) error {
	r := &bitReader{buf: block}
	for r.pos < len(r.buf) {
		b := r.buf[r.pos]
		switch {
		case b&0x80 != 0: // indexed header field, §6.1
			idx, err := r.readInt(7)
			if err != nil {
				return err
			}
			f, ok := lookupIndexed(int(idx), d.dyn)
			if !ok {
				return errHPACKBadIndex
			}
			cb(f)
		case b&0xc0 == 0x40: // literal with incremental indexing, §6.2.1
			f, err := d.decodeLiteral(r, 6)
			if err != nil {
				return err
			}
			d.dyn.add(f)
			cb(f)
		case b&0xf0 == 0x00: // literal without indexing, §6.2.2
			f, err := d.decodeLiteral(r, 4)
			if err != nil {
				return err
			}
			cb(f)
		case b&0xf0 == 0x10: // literal never indexed, §6.2.3
			f, err := d.decodeLiteral(r, 4)
			if err != nil {
				return err
			}
			f.Sensitive = true
			cb(f)
		case b&0xe0 == 0x20: // dynamic table size update, §6.3
			n, err := r.readInt(5)
			if err != nil {
				return err
			}
			d.dyn.setMaxSize(int(n))
		default:
			return fmt.Errorf("h2: unrecognized HPACK representation byte 0x%x", b)
		}
	}
	return nil
}

func (d *Decoder) decodeLiteral(r *bitReader, prefixBits int) (HeaderField, error) {
	nameIndex, err := r.readInt(prefixBits)
	if err != nil {
		return HeaderField{}, err
	}
	var name string
	if nameIndex == 0 {
		name, err = r.readString()
		if err != nil {
			return HeaderField{}, err
		}
	} else {
		f, ok := lookupIndexed(int(nameIndex), d.dyn)
		if !ok {
			return HeaderField{}, errHPACKBadIndex
		}
		name = f.Name
	}
	value, err := r.readString()
	if err != nil {
		return HeaderField{}, err
	}
	return HeaderField{Name: name, Value: value}, nil
}

// bitReader consumes HPACK's byte-aligned integers and Huffman/raw
// strings sequentially from buf.
type bitReader struct {
	buf []byte
	pos int
}

// readInt decodes an HPACK variable-length integer whose first byte
// reserves prefixBits of low-order bits (RFC 7541 §5.1), advancing past
// the representation byte(s) including the prefix byte itself.
func (r *bitReader) readInt(prefixBits int) (uint64, error) {
	if r.pos >= len(r.buf) {
		return 0, errHPACKTruncated
	}
	mask := byte(1<<prefixBits - 1)
	val := uint64(r.buf[r.pos] & mask)
	r.pos++
	if val < uint64(mask) {
		return val, nil
	}
	var m uint
	for {
		if r.pos >= len(r.buf) {
			return 0, errHPACKTruncated
		}
		b := r.buf[r.pos]
		r.pos++
		val += uint64(b&0x7f) << m
		if b&0x80 == 0 {
			break
		}
		m += 7
	}
	return val, nil
}

func (r *bitReader) readString() (string, error) {
	if r.pos >= len(r.buf) {
		return "", errHPACKTruncated
	}
	huffman := r.buf[r.pos]&0x80 != 0
	n, err := r.readInt(7)
	if err != nil {
		return "", err
	}
	if r.pos+int(n) > len(r.buf) {
		return "", errHPACKTruncated
	}
	raw := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	if !huffman {
		return string(raw), nil
	}
	return huffmanDecode(raw)
}

// appendInt appends an HPACK variable-length integer with the given
// prefix bits, ORing flagBits into the first byte (RFC 7541 §5.1).
func appendInt(dst []byte, flagBits byte, prefixBits int, n uint64) []byte {
	max := uint64(1<<prefixBits - 1)
	if n < max {
		return append(dst, flagBits|byte(n))
	}
	dst = append(dst, flagBits|byte(max))
	n -= max
	for n >= 0x80 {
		dst = append(dst, byte(n&0x7f|0x80))
		n >>= 7
	}
	return append(dst, byte(n))
}

// appendHuffmanString appends s as a Huffman-coded string literal if that
// is shorter than the raw encoding, else raw (RFC 7541 §5.2, §4.1.2).
func appendHuffmanString(dst []byte, s string) []byte {
	huff := huffmanEncode(s)
	if len(huff) < len(s) {
		dst = appendInt(dst, 0x80, 7, uint64(len(huff)))
		return append(dst, huff...)
	}
	dst = appendInt(dst, 0x00, 7, uint64(len(s)))
	return append(dst, s...)
}

// fieldsFromHeaders converts an ordered header list plus HTTP/2
// pseudo-headers into the HeaderField slice HPACK encodes, pseudo-headers
// first as RFC 7540 §8.1.2.1 requires, in the order the caller passes
// them.
func fieldsFromHeaders(pseudo []HeaderField, h *headers.Headers, sensitive map[string]bool) []HeaderField {
	fields := make([]HeaderField, 0, len(pseudo)+8)
	fields = append(fields, pseudo...)
	h.Range(func(name, value string) {
		fields = append(fields, HeaderField{Name: name, Value: value, Sensitive: sensitive[name]})
	})
	return fields
}

// headersFromFields rebuilds an ordered header list from a decoded field
// sequence, splitting off leading pseudo-headers (":"-prefixed) into a
// separate map the caller inspects (:status, :authority, etc.).
func headersFromFields(fields []HeaderField) (pseudo map[string]string, h *headers.Headers) {
	pseudo = make(map[string]string)
	h = headers.New()
	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			pseudo[f.Name] = f.Value
			continue
		}
		h.Add(f.Name, f.Value)
	}
	return pseudo, h
}
