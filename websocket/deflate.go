package websocket

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

// deflateTail is appended by the sender and stripped by the receiver per
// RFC 7692 §7.2.2 (the final empty deflate block the spec folds into the
// framing contract).
var deflateTail = [4]byte{0x00, 0x00, 0xff, 0xff}

// permessageDeflate compresses/decompresses message payloads per the
// negotiated RFC 7692 extension. This client always offers
// client_no_context_takeover and server_no_context_takeover (see
// BuildUpgradeHeaders), so every message is compressed and decompressed
// independently; there is no sliding-window dictionary to carry across
// messages.
type permessageDeflate struct {
	compressor *flate.Writer
}

func newPermessageDeflate() *permessageDeflate {
	w, _ := flate.NewWriter(io.Discard, flate.BestSpeed)
	return &permessageDeflate{compressor: w}
}

func (p *permessageDeflate) compress(payload []byte) ([]byte, error) {
	var buf bytes.Buffer
	p.compressor.Reset(&buf)
	if _, err := p.compressor.Write(payload); err != nil {
		return nil, err
	}
	if err := p.compressor.Flush(); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), deflateTail[:]), nil
}

func (p *permessageDeflate) decompress(payload []byte) ([]byte, error) {
	buf := bytes.NewBuffer(payload)
	buf.Write(deflateTail[:])
	r := flate.NewReader(buf)
	defer r.Close()
	return io.ReadAll(r)
}
