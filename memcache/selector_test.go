package memcache

import (
	"fmt"

	. "gopkg.in/check.v1"

	. "github.com/mdorman/memclient/gocheck2"
)

type SelectorSuite struct {
}

var _ = Suite(&SelectorSuite{})

func (s *SelectorSuite) TestPortDefaulting(c *C) {
	sel := NewRingSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2:11311"})
	c.Assert(err, NoErr)
	c.Assert(sel.Servers(), DeepEquals,
		[]string{"cache1:11211", "cache2:11311"})
}

func (s *SelectorSuite) TestEmptyAddrRejected(c *C) {
	sel := NewRingSelector()
	c.Assert(sel.SetServers(ServerSpec{Addr: ""}), NotNil)
}

func (s *SelectorSuite) TestNegativeWeightRejected(c *C) {
	sel := NewRingSelector()
	err := sel.SetServers(ServerSpec{Addr: "cache1", Weight: -1})
	c.Assert(err, NotNil)
}

func (s *SelectorSuite) TestNoServers(c *C) {
	sel := NewRingSelector()
	_, ok := sel.PickServer(NewKey("k"), "k")
	c.Assert(ok, IsFalse)
}

func (s *SelectorSuite) TestSingleServerTakesAll(c *C) {
	sel := NewRingSelector()
	c.Assert(sel.SetServers(ServerSpec{Addr: "cache1"}), NoErr)

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("key-%d", i)
		addr, ok := sel.PickServer(NewKey(key), key)
		c.Assert(ok, IsTrue)
		c.Assert(addr, Equals, "cache1:11211")
	}
}

func (s *SelectorSuite) TestPickIsStable(c *C) {
	sel := NewRingSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2"},
		ServerSpec{Addr: "cache3"})
	c.Assert(err, NoErr)

	first, ok := sel.PickServer(NewKey("stable"), "stable")
	c.Assert(ok, IsTrue)
	for i := 0; i < 10; i++ {
		addr, ok := sel.PickServer(NewKey("stable"), "stable")
		c.Assert(ok, IsTrue)
		c.Assert(addr, Equals, first)
	}
}

func (s *SelectorSuite) TestPrehashedKeyAddressesBucket(c *C) {
	sel := NewRingSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2"})
	c.Assert(err, NoErr)

	addr, ok := sel.PickServer(NewPrehashedKey(0, "k"), "k")
	c.Assert(ok, IsTrue)
	c.Assert(addr, Equals, "cache1:11211")

	addr, ok = sel.PickServer(NewPrehashedKey(1, "k"), "k")
	c.Assert(ok, IsTrue)
	c.Assert(addr, Equals, "cache2:11211")

	// Indexes wrap around the bucket list.
	addr, ok = sel.PickServer(NewPrehashedKey(2, "k"), "k")
	c.Assert(ok, IsTrue)
	c.Assert(addr, Equals, "cache1:11211")
}

func (s *SelectorSuite) TestWeightSkewsDistribution(c *C) {
	sel := NewRingSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1", Weight: 9},
		ServerSpec{Addr: "cache2", Weight: 1})
	c.Assert(err, NoErr)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		addr, ok := sel.PickServer(NewKey(key), key)
		c.Assert(ok, IsTrue)
		counts[addr]++
	}
	c.Assert(counts["cache1:11211"] > counts["cache2:11211"], IsTrue)
}

func (s *SelectorSuite) TestJumpSelectorCoversServers(c *C) {
	sel := NewJumpSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2"},
		ServerSpec{Addr: "cache3"})
	c.Assert(err, NoErr)

	counts := map[string]int{}
	for i := 0; i < 1000; i++ {
		key := fmt.Sprintf("key-%d", i)
		addr, ok := sel.PickServer(NewKey(key), key)
		c.Assert(ok, IsTrue)
		counts[addr]++
	}
	c.Assert(counts, HasLen, 3)
	for _, count := range counts {
		c.Assert(count > 100, IsTrue)
	}
}

func (s *SelectorSuite) TestJumpSelectorStability(c *C) {
	sel := NewJumpSelector()
	err := sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2"},
		ServerSpec{Addr: "cache3"})
	c.Assert(err, NoErr)

	assignments := map[string]string{}
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("key-%d", i)
		addr, _ := sel.PickServer(NewKey(key), key)
		assignments[key] = addr
	}

	// Growing the server list moves only a fraction of the keys.
	err = sel.SetServers(
		ServerSpec{Addr: "cache1"},
		ServerSpec{Addr: "cache2"},
		ServerSpec{Addr: "cache3"},
		ServerSpec{Addr: "cache4"})
	c.Assert(err, NoErr)

	moved := 0
	for key, before := range assignments {
		after, _ := sel.PickServer(NewKey(key), key)
		if after != before {
			moved++
		}
	}
	c.Assert(moved < 100, IsTrue)
}
