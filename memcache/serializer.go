package memcache

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"strconv"

	"github.com/mdorman/memclient/errors"
)

// Serializer converts application values to and from payload bytes.
//
// Scalars (strings, byte slices, integers and floats) are always emitted as
// their plain text form with a zero flag word so that counters stay usable
// by increment / decrement and other clients.  Structured values are encoded
// by the concrete serializer, which marks its flag bit.  The two concrete
// serializers are not interoperable: a value written by one cannot be read
// back by the other.
type Serializer interface {
	Serialize(value interface{}) (*Payload, error)
	Deserialize(payload *Payload) (interface{}, error)
}

func scalarBytes(value interface{}) ([]byte, bool) {
	switch v := value.(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	case int:
		return strconv.AppendInt(nil, int64(v), 10), true
	case int8:
		return strconv.AppendInt(nil, int64(v), 10), true
	case int16:
		return strconv.AppendInt(nil, int64(v), 10), true
	case int32:
		return strconv.AppendInt(nil, int64(v), 10), true
	case int64:
		return strconv.AppendInt(nil, v, 10), true
	case uint:
		return strconv.AppendUint(nil, uint64(v), 10), true
	case uint8:
		return strconv.AppendUint(nil, uint64(v), 10), true
	case uint16:
		return strconv.AppendUint(nil, uint64(v), 10), true
	case uint32:
		return strconv.AppendUint(nil, uint64(v), 10), true
	case uint64:
		return strconv.AppendUint(nil, v, 10), true
	case float32:
		return strconv.AppendFloat(nil, float64(v), 'g', -1, 32), true
	case float64:
		return strconv.AppendFloat(nil, v, 'g', -1, 64), true
	}
	return nil, false
}

// GobSerializer encodes structured values with encoding/gob, the stored
// format used by existing deployments of this client.  Callers storing
// values through interface types must register their concrete types with
// RegisterType first.
type GobSerializer struct {
}

// RegisterType records a concrete type for gob transmission, mirroring
// gob.Register.
func RegisterType(value interface{}) {
	gob.Register(value)
}

func (s *GobSerializer) Serialize(value interface{}) (*Payload, error) {
	if value == nil {
		return nil, nil
	}

	if data, ok := scalarBytes(value); ok {
		return &Payload{Data: data}, nil
	}

	buf := new(bytes.Buffer)
	if err := gob.NewEncoder(buf).Encode(&value); err != nil {
		return nil, errors.Wrap(err, "Failed to gob encode value")
	}
	return &Payload{Data: buf.Bytes(), Flags: FlagSerialized}, nil
}

func (s *GobSerializer) Deserialize(payload *Payload) (interface{}, error) {
	if payload == nil || payload.Data == nil {
		return nil, nil
	}

	if payload.Flags&FlagJSON != 0 {
		return nil, errors.New(
			"Payload was written by the json serializer")
	}

	if payload.Flags&FlagSerialized == 0 {
		return string(payload.Data), nil
	}

	var value interface{}
	dec := gob.NewDecoder(bytes.NewReader(payload.Data))
	if err := dec.Decode(&value); err != nil {
		return nil, errors.Wrap(err, "Failed to gob decode payload")
	}
	return value, nil
}

// JSONSerializer encodes structured values with encoding/json.
type JSONSerializer struct {
}

func (s *JSONSerializer) Serialize(value interface{}) (*Payload, error) {
	if value == nil {
		return nil, nil
	}

	if data, ok := scalarBytes(value); ok {
		return &Payload{Data: data}, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrap(err, "Failed to json encode value")
	}
	return &Payload{Data: data, Flags: FlagJSON}, nil
}

func (s *JSONSerializer) Deserialize(payload *Payload) (interface{}, error) {
	if payload == nil || payload.Data == nil {
		return nil, nil
	}

	if payload.Flags&FlagSerialized != 0 {
		return nil, errors.New(
			"Payload was written by the gob serializer")
	}

	if payload.Flags&FlagJSON == 0 {
		return string(payload.Data), nil
	}

	var value interface{}
	if err := json.Unmarshal(payload.Data, &value); err != nil {
		return nil, errors.Wrap(err, "Failed to json decode payload")
	}
	return value, nil
}
