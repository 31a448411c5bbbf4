package memcache

import (
	"bytes"
	"encoding/binary"
	"net"
	"strconv"

	"github.com/mdorman/memclient/dlog"
	"github.com/mdorman/memclient/errors"
	"github.com/mdorman/memclient/sync2"
)

// The 24-byte big-endian frame shared by binary requests and responses.
// Status is reserved (zero) on requests.
type binaryHeader struct {
	Magic        uint8
	OpCode       uint8
	KeyLength    uint16
	ExtrasLength uint8
	DataType     uint8
	Status       uint16
	BodyLength   uint32
	Opaque       uint32
	CAS          uint64
}

const binaryHeaderLength = 24

// BinaryProtocol speaks the binary memcached protocol.  Every outbound
// request carries a monotonically increasing opaque value which the server
// echoes back; the reply stream is strict FIFO so the opaque is validated,
// not used for correlation.
type BinaryProtocol struct {
	opaqueCounter sync2.AtomicUint32
}

func NewBinaryProtocol() *BinaryProtocol {
	return &BinaryProtocol{}
}

func (p *BinaryProtocol) Name() string {
	return "binary"
}

func (p *BinaryProtocol) Prepare(conn net.Conn) error {
	return nil
}

func (p *BinaryProtocol) RoundTrip(ch *channel, req *Request) error {
	switch req.cmd {
	case cmdGet:
		return p.get(ch, req)
	case cmdSet, cmdAdd, cmdReplace:
		return p.store(ch, req)
	case cmdAppend, cmdPrepend:
		return p.concat(ch, req)
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

func (p *BinaryProtocol) send(
	ch *channel,
	code opCode,
	req *Request,
	key string,
	extras []byte,
	value []byte) error {

	req.opaque = p.opaqueCounter.Add(1)

	hdr := binaryHeader{
		Magic:        reqMagicByte,
		OpCode:       uint8(code),
		KeyLength:    uint16(len(key)),
		ExtrasLength: uint8(len(extras)),
		BodyLength:   uint32(len(extras) + len(key) + len(value)),
		Opaque:       req.opaque,
	}

	if err := binary.Write(ch.rw, binary.BigEndian, &hdr); err != nil {
		ch.invalidate()
		return errors.Wrap(err, "Failed to write request header")
	}
	if err := ch.writeBytes(extras); err != nil {
		return err
	}
	if err := ch.writeStrings(key); err != nil {
		return err
	}
	if err := ch.writeBytes(value); err != nil {
		return err
	}
	return ch.flush()
}

func (p *BinaryProtocol) receive(
	ch *channel,
	code opCode,
	req *Request) (*binaryHeader, []byte, []byte, []byte, error) {

	raw := make([]byte, binaryHeaderLength)
	if err := ch.readFull(raw); err != nil {
		return nil, nil, nil, nil, err
	}

	hdr := &binaryHeader{}
	if err := binary.Read(
		bytes.NewReader(raw), binary.BigEndian, hdr); err != nil {

		ch.invalidate()
		return nil, nil, nil, nil, errors.Wrap(
			err, "Failed to decode response header")
	}

	if hdr.Magic != respMagicByte {
		ch.invalidate()
		return nil, nil, nil, nil, errors.Newf(
			"Invalid response magic byte 0x%x", hdr.Magic)
	}
	if hdr.OpCode != uint8(code) {
		ch.invalidate()
		return nil, nil, nil, nil, errors.Newf(
			"Response opcode 0x%x does not match request opcode 0x%x",
			hdr.OpCode, uint8(code))
	}
	if hdr.DataType != 0 {
		ch.invalidate()
		return nil, nil, nil, nil, errors.Newf(
			"Invalid response data type %d", hdr.DataType)
	}
	if int(hdr.BodyLength) < int(hdr.ExtrasLength)+int(hdr.KeyLength) {
		ch.invalidate()
		return nil, nil, nil, nil, errors.Newf(
			"Invalid response body length %d", hdr.BodyLength)
	}
	if hdr.Opaque != req.opaque {
		ch.invalidate()
		return nil, nil, nil, nil, errors.Newf(
			"Response opaque %d does not match request opaque %d",
			hdr.Opaque, req.opaque)
	}

	if strconv.IntSize == 32 && hdr.CAS>>32 != 0 {
		dlog.Warningf(
			"memcache %s: truncating 64-bit cas %d on a 32-bit platform",
			ch.addr, hdr.CAS)
		hdr.CAS &= 0xffffffff
	}

	body := make([]byte, hdr.BodyLength)
	if err := ch.readFull(body); err != nil {
		return nil, nil, nil, nil, err
	}

	extras := body[:hdr.ExtrasLength]
	key := body[hdr.ExtrasLength : int(hdr.ExtrasLength)+int(hdr.KeyLength)]
	value := body[int(hdr.ExtrasLength)+int(hdr.KeyLength):]
	return hdr, extras, key, value, nil
}

func (p *BinaryProtocol) get(ch *channel, req *Request) error {
	if err := p.send(ch, opGet, req, req.wireKey, nil, nil); err != nil {
		return err
	}

	hdr, extras, _, value, err := p.receive(ch, opGet, req)
	if err != nil {
		return err
	}

	status := ResponseStatus(hdr.Status)
	if status != StatusNoError {
		req.complete(NewGetResponse(req.key.Name, status, 0, nil, nil))
		return nil
	}

	if len(extras) != 4 {
		ch.invalidate()
		return errors.Newf(
			"Invalid get response extras length %d", len(extras))
	}
	flags := binary.BigEndian.Uint32(extras)

	payload, decoded, derr := req.decode(&Payload{Data: value, Flags: flags})
	if derr != nil {
		dlog.Warningf(
			"memcache %s: undecodable value for key %s: %s",
			ch.addr, req.key.Name, derr)
		req.completeDefault()
		return nil
	}

	req.complete(NewGetResponse(
		req.key.Name, StatusNoError, flags, payload.Data, decoded))
	return nil
}

func (p *BinaryProtocol) store(ch *channel, req *Request) error {
	extras := make([]byte, 8)
	binary.BigEndian.PutUint32(extras[0:4], req.payload.Flags)
	binary.BigEndian.PutUint32(extras[4:8], req.expiration)

	var code opCode
	switch req.cmd {
	case cmdSet:
		code = opSet
	case cmdAdd:
		code = opAdd
	case cmdReplace:
		code = opReplace
	}

	err := p.send(ch, code, req, req.wireKey, extras, req.payload.Data)
	if err != nil {
		return err
	}

	hdr, _, _, _, err := p.receive(ch, code, req)
	if err != nil {
		return err
	}

	req.complete(NewMutateResponse(
		req.key.Name, ResponseStatus(hdr.Status)))
	return nil
}

func (p *BinaryProtocol) concat(ch *channel, req *Request) error {
	code := opAppend
	if req.cmd == cmdPrepend {
		code = opPrepend
	}

	err := p.send(ch, code, req, req.wireKey, nil, req.payload.Data)
	if err != nil {
		return err
	}

	hdr, _, _, _, err := p.receive(ch, code, req)
	if err != nil {
		return err
	}

	req.complete(NewMutateResponse(
		req.key.Name, ResponseStatus(hdr.Status)))
	return nil
}

func (p *BinaryProtocol) delete(ch *channel, req *Request) error {
	if err := p.send(ch, opDelete, req, req.wireKey, nil, nil); err != nil {
		return err
	}

	hdr, _, _, _, err := p.receive(ch, opDelete, req)
	if err != nil {
		return err
	}

	req.complete(NewMutateResponse(
		req.key.Name, ResponseStatus(hdr.Status)))
	return nil
}

func (p *BinaryProtocol) count(ch *channel, req *Request) error {
	extras := make([]byte, 20)
	binary.BigEndian.PutUint64(extras[0:8], req.delta)
	binary.BigEndian.PutUint64(extras[8:16], req.initial)
	binary.BigEndian.PutUint32(extras[16:20], req.expiration)

	code := opIncrement
	if req.cmd == cmdDecrement {
		code = opDecrement
	}

	err := p.send(ch, code, req, req.wireKey, extras, nil)
	if err != nil {
		return err
	}

	hdr, _, _, value, err := p.receive(ch, code, req)
	if err != nil {
		return err
	}

	status := ResponseStatus(hdr.Status)
	if status != StatusNoError {
		req.complete(NewCountResponse(req.key.Name, status, 0))
		return nil
	}

	if len(value) != 8 {
		ch.invalidate()
		return errors.Newf(
			"Invalid counter response value length %d", len(value))
	}

	req.complete(NewCountResponse(
		req.key.Name, StatusNoError, binary.BigEndian.Uint64(value)))
	return nil
}

func (p *BinaryProtocol) flush(ch *channel, req *Request) error {
	extras := make([]byte, 4)
	binary.BigEndian.PutUint32(extras, req.expiration)

	if err := p.send(ch, opFlush, req, "", extras, nil); err != nil {
		return err
	}

	hdr, _, _, _, err := p.receive(ch, opFlush, req)
	if err != nil {
		return err
	}

	req.complete(NewResponse(ResponseStatus(hdr.Status)))
	return nil
}

func (p *BinaryProtocol) stat(ch *channel, req *Request) error {
	if err := p.send(ch, opStat, req, req.wireKey, nil, nil); err != nil {
		return err
	}

	stats := make(map[string]string)
	for {
		hdr, _, key, value, err := p.receive(ch, opStat, req)
		if err != nil {
			return err
		}

		status := ResponseStatus(hdr.Status)
		if status != StatusNoError {
			req.completeDefault()
			return nil
		}

		// The stats stream ends with an empty key / value response.
		if len(key) == 0 && len(value) == 0 {
			req.complete(NewStatResponse(
				StatusNoError,
				map[string](map[string]string){ch.addr: stats}))
			return nil
		}
		stats[string(key)] = string(value)
	}
}

func (p *BinaryProtocol) version(ch *channel, req *Request) error {
	if err := p.send(ch, opVersion, req, "", nil, nil); err != nil {
		return err
	}

	hdr, _, _, value, err := p.receive(ch, opVersion, req)
	if err != nil {
		return err
	}

	status := ResponseStatus(hdr.Status)
	if status != StatusNoError {
		req.completeDefault()
		return nil
	}

	req.complete(NewVersionResponse(
		StatusNoError,
		map[string]string{ch.addr: string(value)}))
	return nil
}
