package memcache

import (
	. "gopkg.in/check.v1"

	. "github.com/mdorman/memclient/gocheck2"
)

type MockClientSuite struct {
	client *MockClient
}

var _ = Suite(&MockClientSuite{})

func (s *MockClientSuite) SetUpTest(c *C) {
	s.client = NewMockClient()
}

func (s *MockClientSuite) TestSetGet(c *C) {
	c.Assert(s.client.Set("key", "hello", 0).Status(),
		Equals, StatusNoError)

	get := s.client.Get("key")
	c.Assert(get.Status(), Equals, StatusNoError)
	c.Assert(get.DecodedValue(), Equals, "hello")

	c.Assert(s.client.Get("missing").Status(), Equals, StatusKeyNotFound)
}

func (s *MockClientSuite) TestAddReplaceSemantics(c *C) {
	c.Assert(s.client.Replace("key", "x", 0).Status(),
		Equals, StatusItemNotStored)
	c.Assert(s.client.Add("key", "x", 0).Status(), Equals, StatusNoError)
	c.Assert(s.client.Add("key", "y", 0).Status(),
		Equals, StatusItemNotStored)
	c.Assert(s.client.Replace("key", "y", 0).Status(),
		Equals, StatusNoError)

	c.Assert(s.client.Get("key").DecodedValue(), Equals, "y")
}

func (s *MockClientSuite) TestGetMultiOmitsMisses(c *C) {
	c.Assert(s.client.Set("a", "1", 0).Status(), Equals, StatusNoError)

	found := s.client.GetMulti([]string{"a", "missing"})
	c.Assert(found, HasLen, 1)
	c.Assert(found, HasKey, "a")
}

func (s *MockClientSuite) TestAppendPrepend(c *C) {
	c.Assert(s.client.Append("key", []byte("x")).Status(),
		Equals, StatusItemNotStored)

	c.Assert(s.client.Set("key", "mid", 0).Status(), Equals, StatusNoError)
	c.Assert(s.client.Append("key", []byte("-end")).Status(),
		Equals, StatusNoError)
	c.Assert(s.client.Prepend("key", []byte("start-")).Status(),
		Equals, StatusNoError)

	c.Assert(s.client.Get("key").DecodedValue(), Equals, "start-mid-end")
}

func (s *MockClientSuite) TestDelete(c *C) {
	c.Assert(s.client.Set("key", "x", 0).Status(), Equals, StatusNoError)
	c.Assert(s.client.Delete("key").Status(), Equals, StatusNoError)
	c.Assert(s.client.Delete("key").Status(), Equals, StatusKeyNotFound)
}

func (s *MockClientSuite) TestCounters(c *C) {
	resp := s.client.Increment("counter", 5, 0, noCreateExpiration)
	c.Assert(resp.Status(), Equals, StatusKeyNotFound)

	resp = s.client.Increment("counter", 5, 42, 60)
	c.Assert(resp.Status(), Equals, StatusNoError)
	c.Assert(resp.Count(), Equals, uint64(42))

	resp = s.client.Increment("counter", 5, 42, 60)
	c.Assert(resp.Count(), Equals, uint64(47))

	resp = s.client.Decrement("counter", 100, 0, noCreateExpiration)
	c.Assert(resp.Count(), Equals, uint64(0))
}

func (s *MockClientSuite) TestNonNumericCounter(c *C) {
	c.Assert(s.client.Set("key", "abc", 0).Status(), Equals, StatusNoError)

	resp := s.client.Increment("key", 1, 0, noCreateExpiration)
	c.Assert(resp.Status(), Equals, StatusIncrDecrOnNonNumericValue)
}

func (s *MockClientSuite) TestFlush(c *C) {
	c.Assert(s.client.Set("key", "x", 0).Status(), Equals, StatusNoError)
	c.Assert(s.client.Flush(0).Status(), Equals, StatusNoError)
	c.Assert(s.client.Len(), Equals, 0)
}

func (s *MockClientSuite) TestNamespaceIsolation(c *C) {
	s.client.SetNamespace("a:")
	c.Assert(s.client.Set("key", "1", 0).Status(), Equals, StatusNoError)

	s.client.SetNamespace("b:")
	c.Assert(s.client.Get("key").Status(), Equals, StatusKeyNotFound)

	s.client.SetNamespace("a:")
	c.Assert(s.client.Get("key").DecodedValue(), Equals, "1")
}

func (s *MockClientSuite) TestDoDispatch(c *C) {
	resp := s.client.Do(NewStoreRequest("set", NewKey("key"), "v", 0))
	c.Assert(resp.Status(), Equals, StatusNoError)

	got := s.client.Do(NewGetRequest(NewKey("key")))
	c.Assert(got.(GetResponse).DecodedValue(), Equals, "v")
}
