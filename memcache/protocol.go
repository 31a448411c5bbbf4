package memcache

import (
	"bufio"
	"bytes"
	"io"
	"net"

	"github.com/mdorman/memclient/errors"
)

// Protocol drives one request across an established connection channel.
//
// RoundTrip writes the request's wire bytes and parses the reply.  It
// returns an error only for transport failures or stream corruption the
// channel cannot recover from; the connection then reconnects or fails its
// queue.  Protocol-level rejections and recoverable malformed replies are
// recorded on the request's response and return nil.
type Protocol interface {
	Name() string

	// Prepare runs on the raw socket before the connection is considered
	// established.
	Prepare(conn net.Conn) error

	RoundTrip(ch *channel, req *Request) error
}

// channel is a connection's buffered view of its socket.  validState turns
// false when the reply stream desyncs; the connection then tears the socket
// down instead of reading a corrupted tail.
type channel struct {
	addr       string
	conn       net.Conn
	rw         *bufio.ReadWriter
	validState bool
}

func newChannel(addr string, conn net.Conn) *channel {
	return &channel{
		addr: addr,
		conn: conn,
		rw: bufio.NewReadWriter(
			bufio.NewReader(conn),
			bufio.NewWriter(conn)),
		validState: true,
	}
}

func (ch *channel) invalidate() {
	ch.validState = false
}

func (ch *channel) writeStrings(strs ...string) error {
	for _, str := range strs {
		if _, err := ch.rw.WriteString(str); err != nil {
			ch.invalidate()
			return errors.Wrap(err, "Failed to write to connection")
		}
	}
	return nil
}

func (ch *channel) writeBytes(b []byte) error {
	if _, err := ch.rw.Write(b); err != nil {
		ch.invalidate()
		return errors.Wrap(err, "Failed to write to connection")
	}
	return nil
}

func (ch *channel) flush() error {
	if err := ch.rw.Flush(); err != nil {
		ch.invalidate()
		return errors.Wrap(err, "Failed to flush connection")
	}
	return nil
}

// readLine returns the next reply line without its crlf terminator.
func (ch *channel) readLine() ([]byte, error) {
	line, err := ch.rw.ReadBytes('\n')
	if err != nil {
		ch.invalidate()
		return nil, errors.Wrap(err, "Failed to read from connection")
	}
	if !bytes.HasSuffix(line, []byte("\r\n")) {
		ch.invalidate()
		return nil, errors.New("Reply line is not crlf terminated")
	}
	return line[:len(line)-2], nil
}

func (ch *channel) readFull(b []byte) error {
	if _, err := io.ReadFull(ch.rw, b); err != nil {
		ch.invalidate()
		return errors.Wrap(err, "Failed to read from connection")
	}
	return nil
}
