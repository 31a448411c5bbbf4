package memcache

import (
	. "gopkg.in/check.v1"

	. "github.com/mdorman/memclient/gocheck2"
)

type TextProtocolSuite struct {
	proto *TextProtocol
}

var _ = Suite(&TextProtocolSuite{})

func (s *TextProtocolSuite) SetUpTest(c *C) {
	s.proto = NewTextProtocol()
}

func (s *TextProtocolSuite) textGetRequest(key string) *Request {
	req := NewGetRequest(NewKey(key))
	req.wireKey = key
	req.decode = identityDecode
	return req
}

func (s *TextProtocolSuite) TestGetHit(c *C) {
	ch, conn := newTestChannel("VALUE key 7 5\r\nhello\r\nEND\r\n")
	req := s.textGetRequest("key")
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "get key\r\n")

	get := (*resp).(GetResponse)
	c.Assert(get.Status(), Equals, StatusNoError)
	c.Assert(get.Key(), Equals, "key")
	c.Assert(string(get.Value()), Equals, "hello")
	c.Assert(get.DecodedValue(), Equals, "hello")
	c.Assert(get.Flags(), Equals, uint32(7))
}

func (s *TextProtocolSuite) TestGetMiss(c *C) {
	ch, _ := newTestChannel("END\r\n")
	req := s.textGetRequest("key")
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)

	get := (*resp).(GetResponse)
	c.Assert(get.Status(), Equals, StatusKeyNotFound)
	c.Assert(get.Value(), IsNil)
}

func (s *TextProtocolSuite) TestGetServerError(c *C) {
	ch, _ := newTestChannel("SERVER_ERROR out of memory\r\n")
	req := s.textGetRequest("key")
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert((*resp).Status(), Equals, StatusKeyNotFound)
	c.Assert(ch.validState, IsTrue)
}

func (s *TextProtocolSuite) TestGetGarbageDesyncs(c *C) {
	ch, _ := newTestChannel("WAT\r\n")
	req := s.textGetRequest("key")
	capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NotNil)
	c.Assert(ch.validState, IsFalse)
}

func (s *TextProtocolSuite) TestGetValueNotCrlfTerminated(c *C) {
	ch, _ := newTestChannel("VALUE key 0 5\r\nhelloXXEND\r\n")
	req := s.textGetRequest("key")
	capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NotNil)
	c.Assert(ch.validState, IsFalse)
}

func (s *TextProtocolSuite) textStoreRequest(
	cmd string,
	key string,
	value string,
	flags uint32,
	expiration uint32) *Request {

	req := NewStoreRequest(cmd, NewKey(key), value, expiration)
	req.wireKey = key
	req.payload = &Payload{Data: []byte(value), Flags: flags}
	return req
}

func (s *TextProtocolSuite) TestSetStored(c *C) {
	ch, conn := newTestChannel("STORED\r\n")
	req := s.textStoreRequest("set", "key", "hello", 7, 60)
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "set key 7 60 5\r\nhello\r\n")
	c.Assert((*resp).Status(), Equals, StatusNoError)
}

func (s *TextProtocolSuite) TestAddNotStored(c *C) {
	ch, conn := newTestChannel("NOT_STORED\r\n")
	req := s.textStoreRequest("add", "key", "hello", 0, 0)
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "add key 0 0 5\r\nhello\r\n")
	c.Assert((*resp).Status(), Equals, StatusItemNotStored)
}

func (s *TextProtocolSuite) TestAppend(c *C) {
	ch, conn := newTestChannel("STORED\r\n")
	req := NewAppendRequest(NewKey("key"), []byte("tail"))
	req.wireKey = "key"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "append key 0 0 4\r\ntail\r\n")
	c.Assert((*resp).Status(), Equals, StatusNoError)
}

func (s *TextProtocolSuite) TestDelete(c *C) {
	ch, conn := newTestChannel("DELETED\r\n")
	req := NewDeleteRequest(NewKey("key"))
	req.wireKey = "key"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "delete key\r\n")
	c.Assert((*resp).Status(), Equals, StatusNoError)
}

func (s *TextProtocolSuite) TestDeleteMiss(c *C) {
	ch, _ := newTestChannel("NOT_FOUND\r\n")
	req := NewDeleteRequest(NewKey("key"))
	req.wireKey = "key"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert((*resp).Status(), Equals, StatusKeyNotFound)
}

func (s *TextProtocolSuite) TestIncrement(c *C) {
	ch, conn := newTestChannel("6\r\n")
	req := NewCountRequest("incr", NewKey("counter"), 2, 0, noCreateExpiration)
	req.wireKey = "counter"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "incr counter 2\r\n")

	count := (*resp).(CountResponse)
	c.Assert(count.Status(), Equals, StatusNoError)
	c.Assert(count.Count(), Equals, uint64(6))
}

func (s *TextProtocolSuite) TestIncrementMissWithoutSeed(c *C) {
	ch, _ := newTestChannel("NOT_FOUND\r\n")
	req := NewCountRequest("incr", NewKey("counter"), 2, 0, noCreateExpiration)
	req.wireKey = "counter"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert((*resp).Status(), Equals, StatusKeyNotFound)
}

func (s *TextProtocolSuite) TestIncrementMissSeedsCounter(c *C) {
	ch, conn := newTestChannel("NOT_FOUND\r\nSTORED\r\n")
	req := NewCountRequest("incr", NewKey("counter"), 2, 10, 60)
	req.wireKey = "counter"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals,
		"incr counter 2\r\nadd counter 0 60 2\r\n10\r\n")

	count := (*resp).(CountResponse)
	c.Assert(count.Status(), Equals, StatusNoError)
	c.Assert(count.Count(), Equals, uint64(10))
}

func (s *TextProtocolSuite) TestIncrementSeedLostRace(c *C) {
	// Another client created the counter between incr and add.
	ch, _ := newTestChannel("NOT_FOUND\r\nNOT_STORED\r\n")
	req := NewCountRequest("incr", NewKey("counter"), 2, 10, 60)
	req.wireKey = "counter"
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert((*resp).Status(), Equals, StatusKeyNotFound)
}

func (s *TextProtocolSuite) TestFlush(c *C) {
	ch, conn := newTestChannel("OK\r\n")
	req := &Request{
		cmd:             cmdFlush,
		defaultResponse: NewResponse(StatusInternalError),
	}
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "flush_all\r\n")
	c.Assert((*resp).Status(), Equals, StatusNoError)
}

func (s *TextProtocolSuite) TestFlushDelayed(c *C) {
	ch, conn := newTestChannel("OK\r\n")
	req := &Request{
		cmd:             cmdFlush,
		expiration:      30,
		defaultResponse: NewResponse(StatusInternalError),
	}
	capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "flush_all 30\r\n")
}

func (s *TextProtocolSuite) TestStat(c *C) {
	ch, conn := newTestChannel(
		"STAT pid 1234\r\nSTAT uptime 56\r\nEND\r\n")
	req := &Request{
		cmd:             cmdStat,
		defaultResponse: NewStatResponse(StatusNoError, nil),
	}
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "stats\r\n")

	stat := (*resp).(StatResponse)
	c.Assert(stat.Entries(), DeepEquals, map[string](map[string]string){
		"testhost:11211": {"pid": "1234", "uptime": "56"},
	})
}

func (s *TextProtocolSuite) TestStatSubset(c *C) {
	ch, conn := newTestChannel("END\r\n")
	req := &Request{
		cmd:             cmdStat,
		wireKey:         "slabs",
		defaultResponse: NewStatResponse(StatusNoError, nil),
	}
	capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "stats slabs\r\n")
}

func (s *TextProtocolSuite) TestVersion(c *C) {
	ch, conn := newTestChannel("VERSION 1.6.21\r\n")
	req := &Request{
		cmd:             cmdVersion,
		defaultResponse: NewVersionResponse(StatusNoError, nil),
	}
	resp := capture(req)

	c.Assert(s.proto.RoundTrip(ch, req), NoErr)
	c.Assert(conn.sendBuf.String(), Equals, "version\r\n")

	version := (*resp).(VersionResponse)
	c.Assert(version.Versions(), DeepEquals,
		map[string]string{"testhost:11211": "1.6.21"})
}
