package memcache

import (
	"bytes"
	"net"
	"strconv"

	"github.com/mdorman/memclient/dlog"
	"github.com/mdorman/memclient/errors"
)

// TextProtocol speaks the ascii memcached protocol: crlf-terminated command
// lines with inline data blocks.
type TextProtocol struct {
}

func NewTextProtocol() *TextProtocol {
	return &TextProtocol{}
}

func (p *TextProtocol) Name() string {
	return "text"
}

func (p *TextProtocol) Prepare(conn net.Conn) error {
	return nil
}

func (p *TextProtocol) RoundTrip(ch *channel, req *Request) error {
	switch req.cmd {
	case cmdGet:
		return p.get(ch, req)
	case cmdSet, cmdAdd, cmdReplace, cmdAppend, cmdPrepend:
		return p.store(ch, req)
	case cmdDelete:
		return p.delete(ch, req)
	case cmdIncrement, cmdDecrement:
		return p.count(ch, req)
	case cmdFlush:
		return p.flush(ch, req)
	case cmdStat:
		return p.stat(ch, req)
	case cmdVersion:
		return p.version(ch, req)
	}
	req.failWith(errors.Newf("Unsupported command %s", req.cmd))
	return nil
}

// True for the reply keywords every command can produce on rejection.
func isTextErrorLine(line []byte) bool {
	return bytes.Equal(line, []byte("ERROR")) ||
		bytes.HasPrefix(line, []byte("CLIENT_ERROR")) ||
		bytes.HasPrefix(line, []byte("SERVER_ERROR"))
}

func (p *TextProtocol) get(ch *channel, req *Request) error {
	err := ch.writeStrings("get ", req.wireKey, "\r\n")
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	completed := false
	for {
		line, err := ch.readLine()
		if err != nil {
			return err
		}

		if bytes.Equal(line, []byte("END")) {
			if !completed {
				req.completeDefault()
			}
			return nil
		}

		if isTextErrorLine(line) {
			req.completeDefault()
			return nil
		}

		fields := bytes.Fields(line)
		if len(fields) < 4 || !bytes.Equal(fields[0], []byte("VALUE")) {
			ch.invalidate()
			return errors.Newf("Unexpected get reply line: %s", line)
		}

		flags64, ferr := strconv.ParseUint(string(fields[2]), 10, 32)
		size, serr := strconv.ParseInt(string(fields[3]), 10, 64)
		if ferr != nil || serr != nil || size < 0 {
			ch.invalidate()
			return errors.Newf("Malformed get reply line: %s", line)
		}

		data := make([]byte, size)
		if err := ch.readFull(data); err != nil {
			return err
		}
		crlf := make([]byte, 2)
		if err := ch.readFull(crlf); err != nil {
			return err
		}
		if !bytes.Equal(crlf, []byte("\r\n")) {
			ch.invalidate()
			return errors.New("Value block is not crlf terminated")
		}

		payload, decoded, derr := req.decode(
			&Payload{Data: data, Flags: uint32(flags64)})
		if derr != nil {
			dlog.Warningf(
				"memcache %s: undecodable value for key %s: %s",
				ch.addr, req.key.Name, derr)
			req.completeDefault()
		} else {
			req.complete(NewGetResponse(
				req.key.Name,
				StatusNoError,
				uint32(flags64),
				payload.Data,
				decoded))
		}
		completed = true
	}
}

func (p *TextProtocol) store(ch *channel, req *Request) error {
	err := ch.writeStrings(
		req.cmd.String(), " ",
		req.wireKey, " ",
		strconv.FormatUint(uint64(req.payload.Flags), 10), " ",
		strconv.FormatUint(uint64(req.expiration), 10), " ",
		strconv.Itoa(len(req.payload.Data)), "\r\n")
	if err == nil {
		err = ch.writeBytes(req.payload.Data)
	}
	if err == nil {
		err = ch.writeStrings("\r\n")
	}
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	status, ok := storeReplyStatus(line)
	if !ok {
		ch.invalidate()
		return errors.Newf("Unexpected %s reply line: %s", req.cmd, line)
	}
	req.complete(NewMutateResponse(req.key.Name, status))
	return nil
}

func storeReplyStatus(line []byte) (ResponseStatus, bool) {
	switch {
	case bytes.Equal(line, []byte("STORED")):
		return StatusNoError, true
	case bytes.Equal(line, []byte("NOT_STORED")):
		return StatusItemNotStored, true
	case bytes.Equal(line, []byte("EXISTS")):
		return StatusKeyExists, true
	case bytes.Equal(line, []byte("NOT_FOUND")):
		return StatusKeyNotFound, true
	case isTextErrorLine(line):
		return StatusInvalidArguments, true
	}
	return 0, false
}

func (p *TextProtocol) delete(ch *channel, req *Request) error {
	err := ch.writeStrings("delete ", req.wireKey, "\r\n")
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	switch {
	case bytes.Equal(line, []byte("DELETED")):
		req.complete(NewMutateResponse(req.key.Name, StatusNoError))
	case bytes.Equal(line, []byte("NOT_FOUND")):
		req.complete(NewMutateResponse(req.key.Name, StatusKeyNotFound))
	case isTextErrorLine(line):
		req.completeDefault()
	default:
		ch.invalidate()
		return errors.Newf("Unexpected delete reply line: %s", line)
	}
	return nil
}

func (p *TextProtocol) count(ch *channel, req *Request) error {
	err := ch.writeStrings(
		req.cmd.String(), " ",
		req.wireKey, " ",
		strconv.FormatUint(req.delta, 10), "\r\n")
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	if bytes.Equal(line, []byte("NOT_FOUND")) {
		if !req.hasInitial() {
			req.completeDefault()
			return nil
		}
		return p.seedCounter(ch, req)
	}

	if isTextErrorLine(line) {
		req.completeDefault()
		return nil
	}

	count, perr := strconv.ParseUint(string(line), 10, 64)
	if perr != nil {
		dlog.Warningf(
			"memcache %s: malformed %s reply: %s",
			ch.addr, req.cmd, line)
		req.completeDefault()
		return nil
	}

	req.complete(NewCountResponse(req.key.Name, StatusNoError, count))
	return nil
}

// The counter did not exist; seed it with the request's initial value.
func (p *TextProtocol) seedCounter(ch *channel, req *Request) error {
	initial := strconv.FormatUint(req.initial, 10)
	err := ch.writeStrings(
		"add ",
		req.wireKey, " 0 ",
		strconv.FormatUint(uint64(req.expiration), 10), " ",
		strconv.Itoa(len(initial)), "\r\n",
		initial, "\r\n")
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	status, ok := storeReplyStatus(line)
	if !ok {
		ch.invalidate()
		return errors.Newf("Unexpected add reply line: %s", line)
	}
	if status == StatusNoError {
		req.complete(NewCountResponse(
			req.key.Name, StatusNoError, req.initial))
	} else {
		req.completeDefault()
	}
	return nil
}

func (p *TextProtocol) flush(ch *channel, req *Request) error {
	var err error
	if req.expiration == 0 {
		err = ch.writeStrings("flush_all\r\n")
	} else {
		err = ch.writeStrings(
			"flush_all ",
			strconv.FormatUint(uint64(req.expiration), 10), "\r\n")
	}
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	if bytes.Equal(line, []byte("OK")) {
		req.complete(NewResponse(StatusNoError))
	} else if isTextErrorLine(line) {
		req.completeDefault()
	} else {
		ch.invalidate()
		return errors.Newf("Unexpected flush_all reply line: %s", line)
	}
	return nil
}

func (p *TextProtocol) stat(ch *channel, req *Request) error {
	var err error
	if req.wireKey == "" {
		err = ch.writeStrings("stats\r\n")
	} else {
		err = ch.writeStrings("stats ", req.wireKey, "\r\n")
	}
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	stats := make(map[string]string)
	for {
		line, err := ch.readLine()
		if err != nil {
			return err
		}

		if bytes.Equal(line, []byte("END")) {
			req.complete(NewStatResponse(
				StatusNoError,
				map[string](map[string]string){ch.addr: stats}))
			return nil
		}

		if isTextErrorLine(line) {
			req.completeDefault()
			return nil
		}

		fields := bytes.SplitN(line, []byte(" "), 3)
		if len(fields) != 3 || !bytes.Equal(fields[0], []byte("STAT")) {
			ch.invalidate()
			return errors.Newf("Unexpected stats reply line: %s", line)
		}
		stats[string(fields[1])] = string(fields[2])
	}
}

func (p *TextProtocol) version(ch *channel, req *Request) error {
	err := ch.writeStrings("version\r\n")
	if err == nil {
		err = ch.flush()
	}
	if err != nil {
		return err
	}

	line, err := ch.readLine()
	if err != nil {
		return err
	}

	if isTextErrorLine(line) {
		req.completeDefault()
		return nil
	}

	if !bytes.HasPrefix(line, []byte("VERSION ")) {
		ch.invalidate()
		return errors.Newf("Unexpected version reply line: %s", line)
	}

	req.complete(NewVersionResponse(
		StatusNoError,
		map[string]string{
			ch.addr: string(line[len("VERSION "):]),
		}))
	return nil
}
