// Package compression provides pluggable value compression for the KV Map.
package compression

import (
	"bytes"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm is a named, reversible byte transform.
type Algorithm interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Codec picks an Algorithm by name and gates compression behind a size
// threshold: values shorter than MinSize are stored as-is, tagged "none".
type Codec struct {
	algorithms map[string]Algorithm
	chosen     string
	minSize    int
}

// NewCodec builds a Codec. name selects the algorithm used for new writes
// ("snappy", "lz4", "zstd", or "none" to disable compression outright);
// minSize is the smallest value, in bytes, eligible for compression.
func NewCodec(name string, minSize int) (*Codec, error) {
	c := &Codec{
		algorithms: map[string]Algorithm{
			"snappy": snappyAlgorithm{},
			"lz4":    lz4Algorithm{},
			"zstd":   zstdAlgorithm{},
		},
		chosen:  name,
		minSize: minSize,
	}
	if name != "none" {
		if _, ok := c.algorithms[name]; !ok {
			return nil, fmt.Errorf("compression: unknown algorithm %q", name)
		}
	}
	return c, nil
}

// Encode compresses data if it qualifies, returning the stored bytes and
// the algorithm tag needed to reverse the transform later.
func (c *Codec) Encode(data []byte) (stored []byte, tag string, err error) {
	if c.chosen == "none" || len(data) < c.minSize {
		return data, "none", nil
	}
	algo := c.algorithms[c.chosen]
	out, err := algo.Compress(data)
	if err != nil {
		return nil, "", fmt.Errorf("compression: compress with %s: %w", c.chosen, err)
	}
	return out, algo.Name(), nil
}

// Decode reverses Encode given the tag it returned.
func (c *Codec) Decode(stored []byte, tag string) ([]byte, error) {
	if tag == "none" {
		return stored, nil
	}
	algo, ok := c.algorithms[tag]
	if !ok {
		return nil, fmt.Errorf("compression: unknown algorithm tag %q", tag)
	}
	out, err := algo.Decompress(stored)
	if err != nil {
		return nil, fmt.Errorf("compression: decompress with %s: %w", tag, err)
	}
	return out, nil
}

type snappyAlgorithm struct{}

func (snappyAlgorithm) Name() string { return "snappy" }

func (snappyAlgorithm) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyAlgorithm) Decompress(data []byte) ([]byte, error) {
	return snappy.Decode(nil, data)
}

type lz4Algorithm struct{}

func (lz4Algorithm) Name() string { return "lz4" }

func (lz4Algorithm) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lz4Algorithm) Decompress(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	return io.ReadAll(r)
}

type zstdAlgorithm struct{}

func (zstdAlgorithm) Name() string { return "zstd" }

func (zstdAlgorithm) Compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func (zstdAlgorithm) Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
