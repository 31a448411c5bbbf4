package memcache

import (
	"bytes"
	"math/rand"

	. "gopkg.in/check.v1"

	. "github.com/mdorman/memclient/gocheck2"
)

type CompressorSuite struct {
}

var _ = Suite(&CompressorSuite{})

func compressible(size int) []byte {
	return bytes.Repeat([]byte("abcdefgh"), size/8+1)[:size]
}

func incompressible(size int) []byte {
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(42))
	rng.Read(data)
	return data
}

func (s *CompressorSuite) TestCompressRoundTrip(c *C) {
	cmp := NewGzipCompressor(64)

	payload, err := cmp.Compress(
		&Payload{Data: compressible(1024)}, "set")
	c.Assert(err, NoErr)
	c.Assert(payload.Flags&FlagCompressed, Not(Equals), uint32(0))
	c.Assert(len(payload.Data) < 1024, IsTrue)

	payload, err = cmp.Decompress(payload)
	c.Assert(err, NoErr)
	c.Assert(payload.Flags, Equals, uint32(0))
	c.Assert(payload.Data, DeepEquals, compressible(1024))
}

func (s *CompressorSuite) TestBelowThresholdUntouched(c *C) {
	cmp := NewGzipCompressor(64)

	data := compressible(32)
	payload, err := cmp.Compress(&Payload{Data: data}, "set")
	c.Assert(err, NoErr)
	c.Assert(payload.Flags, Equals, uint32(0))
	c.Assert(payload.Data, DeepEquals, data)
}

func (s *CompressorSuite) TestIncompressibleStaysPlain(c *C) {
	cmp := NewGzipCompressor(64)

	data := incompressible(1024)
	payload, err := cmp.Compress(&Payload{Data: data}, "set")
	c.Assert(err, NoErr)
	c.Assert(payload.Flags, Equals, uint32(0))
	c.Assert(payload.Data, DeepEquals, data)
}

func (s *CompressorSuite) TestConcatCommandsNeverCompressed(c *C) {
	cmp := NewGzipCompressor(64)

	for _, cmd := range []string{"append", "prepend"} {
		payload, err := cmp.Compress(
			&Payload{Data: compressible(1024)}, cmd)
		c.Assert(err, NoErr)
		c.Assert(payload.Flags, Equals, uint32(0))
	}
}

func (s *CompressorSuite) TestZeroThresholdDisables(c *C) {
	cmp := NewGzipCompressor(0)

	payload, err := cmp.Compress(
		&Payload{Data: compressible(1 << 20)}, "set")
	c.Assert(err, NoErr)
	c.Assert(payload.Flags, Equals, uint32(0))
}

func (s *CompressorSuite) TestSetCompressThreshold(c *C) {
	cmp := NewGzipCompressor(0)
	c.Assert(cmp.CompressThreshold(), Equals, 0)

	cmp.SetCompressThreshold(64)
	c.Assert(cmp.CompressThreshold(), Equals, 64)

	payload, err := cmp.Compress(
		&Payload{Data: compressible(1024)}, "set")
	c.Assert(err, NoErr)
	c.Assert(payload.Flags&FlagCompressed, Not(Equals), uint32(0))
}

func (s *CompressorSuite) TestUncompressedPayloadPassesThrough(c *C) {
	cmp := NewGzipCompressor(64)

	payload := &Payload{Data: []byte("plain")}
	decompressed, err := cmp.Decompress(payload)
	c.Assert(err, NoErr)
	c.Assert(decompressed, Equals, payload)
}
