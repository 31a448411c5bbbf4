package memcache

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/mdorman/memclient/errors"
)

// Compressor optionally compresses payloads above a size threshold.  The
// command name is passed in because append and prepend values must stay
// byte-for-byte compatible with the stored value and are never compressed.
type Compressor interface {
	Compress(payload *Payload, cmd string) (*Payload, error)
	Decompress(payload *Payload) (*Payload, error)

	CompressThreshold() int
	SetCompressThreshold(threshold int)
}

// GzipCompressor compresses payloads with gzip when the payload meets the
// threshold and compression saves at least 20 percent.
type GzipCompressor struct {
	mutex     sync.Mutex
	threshold int
}

// NewGzipCompressor returns a gzip compressor with the given threshold in
// bytes.  A zero threshold disables compression.
func NewGzipCompressor(threshold int) *GzipCompressor {
	return &GzipCompressor{threshold: threshold}
}

func (c *GzipCompressor) CompressThreshold() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.threshold
}

func (c *GzipCompressor) SetCompressThreshold(threshold int) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.threshold = threshold
}

func (c *GzipCompressor) Compress(
	payload *Payload,
	cmd string) (*Payload, error) {

	if payload == nil {
		return nil, nil
	}

	threshold := c.CompressThreshold()
	if cmd == "append" || cmd == "prepend" ||
		threshold <= 0 ||
		len(payload.Data) < threshold {

		return payload, nil
	}

	buf := new(bytes.Buffer)
	wr := gzip.NewWriter(buf)
	if _, err := wr.Write(payload.Data); err != nil {
		return nil, errors.Wrap(err, "Failed to gzip payload")
	}
	if err := wr.Close(); err != nil {
		return nil, errors.Wrap(err, "Failed to gzip payload")
	}

	maxLen := int(float64(len(payload.Data)) * (1 - minCompressSavings))
	if buf.Len() >= maxLen {
		return payload, nil
	}

	return &Payload{
		Data:  buf.Bytes(),
		Flags: payload.Flags | FlagCompressed,
	}, nil
}

func (c *GzipCompressor) Decompress(payload *Payload) (*Payload, error) {
	if payload == nil {
		return nil, nil
	}

	if payload.Flags&FlagCompressed == 0 {
		return payload, nil
	}

	rd, err := gzip.NewReader(bytes.NewReader(payload.Data))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to gunzip payload")
	}
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to gunzip payload")
	}
	if err := rd.Close(); err != nil {
		return nil, errors.Wrap(err, "Failed to gunzip payload")
	}

	return &Payload{
		Data:  data,
		Flags: payload.Flags &^ FlagCompressed,
	}, nil
}
