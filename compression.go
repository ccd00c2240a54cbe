package zarr

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
	"github.com/qri-io/dataset/compression"
)

// NumcodecsConfig is a version 2 codec configuration: a mapping whose "id"
// key names the codec, with codec specific parameters alongside it, eg.
// {"id": "blosc", "cname": "lz4", "clevel": 5, "shuffle": 1}
type NumcodecsConfig struct {
	ID     string
	Config map[string]any
}

var _ CodecConfigurer = NumcodecsConfig{}

// CodecConfig implements CodecConfigurer
func (m NumcodecsConfig) CodecConfig() map[string]any {
	out := make(map[string]any, len(m.Config)+1)
	for k, v := range m.Config {
		out[k] = v
	}
	out["id"] = m.ID
	return out
}

// IntParam reads an integral parameter, returning def when it is unset
func (m NumcodecsConfig) IntParam(name string, def int) int {
	v, ok := m.Config[name]
	if !ok {
		return def
	}
	i, err := Int()(v)
	if err != nil {
		return def
	}
	return i
}

// numcodecs ids mapped to the dataset compression formats
var numcodecsStreamFormats = map[string]string{
	"gzip": "gzip",
	"zstd": "zst",
}

// Decompressor wraps a reader of compressed chunk bytes
func (m NumcodecsConfig) Decompressor(r io.Reader) (io.ReadCloser, error) {
	if m.ID == "lz4" {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		raw, err := decompressNumcodecsLZ4(data)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(raw)), nil
	}
	format, ok := numcodecsStreamFormats[m.ID]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported compressor %q", ErrInvalidConfiguration, m.ID)
	}
	return compression.Decompressor(format, r)
}

// Compress encodes a chunk with this compressor
func (m NumcodecsConfig) Compress(data []byte) ([]byte, error) {
	if m.ID == "lz4" {
		return compressNumcodecsLZ4(data)
	}
	format, ok := numcodecsStreamFormats[m.ID]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported compressor %q", ErrInvalidConfiguration, m.ID)
	}
	buf := &bytes.Buffer{}
	w, err := compression.Compressor(format, buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decompress decodes a chunk written with this compressor
func (m NumcodecsConfig) Decompress(data []byte) ([]byte, error) {
	r, err := m.Decompressor(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// numcodecs frames an lz4 block with the uncompressed length as a
// little-endian uint32
func compressNumcodecsLZ4(data []byte) ([]byte, error) {
	dst := make([]byte, 4+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(dst, uint32(len(data)))
	n, err := lz4.CompressBlock(data, dst[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return dst[:4+n], nil
}

// lz4MaxExpansion bounds the decompressed size of an lz4 block of n bytes
func lz4MaxExpansion(n int) int { return n*255 + 16 }

func decompressNumcodecsLZ4(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("lz4 decompress: %d bytes is too short for a header", len(data))
	}
	size := int(binary.LittleEndian.Uint32(data))
	if limit := lz4MaxExpansion(len(data) - 4); size > limit {
		return nil, fmt.Errorf("lz4 decompress: header claims %d bytes, at most %d can come from %d compressed bytes", size, limit, len(data)-4)
	}
	dst := make([]byte, size)
	if size == 0 {
		return dst, nil
	}
	n, err := lz4.UncompressBlock(data[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, size)
	}
	return dst, nil
}

var numcodecsConfigDecoder = Decoder[NumcodecsConfig](func(v any) (NumcodecsConfig, error) {
	m, err := asMapping("numcodecs configuration", v)
	if err != nil {
		return NumcodecsConfig{}, err
	}
	id, ok := m["id"].(string)
	if !ok {
		return NumcodecsConfig{}, mismatch("numcodecs configuration", v, `missing string "id"`)
	}
	c := NumcodecsConfig{ID: id, Config: make(map[string]any, len(m)-1)}
	for k, el := range m {
		if k != "id" {
			c.Config[k] = el
		}
	}
	return c, nil
})
