package cache

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Codec compresses values before they are written to the remote tier.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Compressed remote values are framed as
//
//	0x01 "qfc:" <codec name> ":" <compressed bytes>
//
// so a reader can tell a compressed payload apart from a raw one and pick
// the matching codec. 0x01 never starts a serialized value, which is
// transport-safe text.
const compressedMagic = "\x01qfc:"

func frameCompressed(codec string, data []byte) []byte {
	header := compressedMagic + codec + ":"
	out := make([]byte, 0, len(header)+len(data))
	out = append(out, header...)
	return append(out, data...)
}

// parseCompressed splits a framed payload into codec name and body.
// ok is false for raw payloads.
func parseCompressed(data []byte) (codec string, body []byte, ok bool) {
	if !bytes.HasPrefix(data, []byte(compressedMagic)) {
		return "", nil, false
	}
	rest := data[len(compressedMagic):]
	i := bytes.IndexByte(rest, ':')
	if i < 0 {
		return "", nil, false
	}
	return string(rest[:i]), rest[i+1:], true
}

// GzipCodec is the default codec.
type GzipCodec struct{}

func (GzipCodec) Name() string { return "gzip" }

func (GzipCodec) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GzipCodec) Decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// decode reverses frameCompressed using codec, validating the marker.
func decodeValue(codec Codec, data []byte) ([]byte, error) {
	name, body, ok := parseCompressed(data)
	if !ok {
		return data, nil
	}
	if codec == nil || name != codec.Name() {
		return nil, fmt.Errorf("cache: value compressed with unknown codec %q", name)
	}
	return codec.Decompress(body)
}
