package memcache

import (
	"github.com/mdorman/memclient/errors"
)

// Response is the common result surface for all cache operations.  Error is
// non-nil whenever Status is not StatusNoError, including ordinary outcomes
// such as a key miss.  An operation that failed before or during transport
// carries StatusInternalError and its error; the typed accessors of any
// failed response yield their command's default value.
type Response interface {
	Status() ResponseStatus
	Error() error
}

// GetResponse is the result of a get.  Value holds the stored bytes after
// decompression; DecodedValue holds the deserialized application value.
type GetResponse interface {
	Response
	Key() string
	Value() []byte
	DecodedValue() interface{}
	Flags() uint32
}

// MutateResponse is the result of the boolean commands: set, add, replace,
// append, prepend, delete.
type MutateResponse interface {
	Response
	Key() string
}

// CountResponse is the result of increment / decrement.
type CountResponse interface {
	Response
	Key() string
	Count() uint64
}

// StatResponse holds statistics entries keyed by server address.
type StatResponse interface {
	Response
	Entries() map[string](map[string]string)
}

// VersionResponse holds server version strings keyed by server address.
type VersionResponse interface {
	Response
	Versions() map[string]string
}

// genericResponse implements every response interface.  Constructors fill
// in the fields relevant to one command and leave the rest at their
// defaults, which is exactly what the accessors must yield on failure.
type genericResponse struct {
	status   ResponseStatus
	err      error
	key      string
	value    []byte
	decoded  interface{}
	flags    uint32
	count    uint64
	statEntries map[string](map[string]string)
	versions map[string]string
}

func (r *genericResponse) Status() ResponseStatus {
	return r.status
}

func (r *genericResponse) Error() error {
	return r.err
}

func (r *genericResponse) Key() string {
	return r.key
}

func (r *genericResponse) Value() []byte {
	return r.value
}

func (r *genericResponse) DecodedValue() interface{} {
	return r.decoded
}

func (r *genericResponse) Flags() uint32 {
	return r.flags
}

func (r *genericResponse) Count() uint64 {
	return r.count
}

func (r *genericResponse) Entries() map[string](map[string]string) {
	if r.statEntries == nil {
		return map[string](map[string]string){}
	}
	return r.statEntries
}

func (r *genericResponse) Versions() map[string]string {
	if r.versions == nil {
		return map[string]string{}
	}
	return r.versions
}

func statusError(status ResponseStatus) error {
	if status == StatusNoError {
		return nil
	}
	return errors.Newf("Memcache error status %d", uint16(status))
}

func NewResponse(status ResponseStatus) Response {
	return &genericResponse{status: status, err: statusError(status)}
}

func NewErrorResponse(err error) Response {
	return &genericResponse{status: StatusInternalError, err: err}
}

func NewGetResponse(
	key string,
	status ResponseStatus,
	flags uint32,
	value []byte,
	decoded interface{}) GetResponse {

	return &genericResponse{
		status:  status,
		err:     statusError(status),
		key:     key,
		value:   value,
		decoded: decoded,
		flags:   flags,
	}
}

func NewGetErrorResponse(key string, err error) GetResponse {
	return &genericResponse{status: StatusInternalError, err: err, key: key}
}

func NewMutateResponse(key string, status ResponseStatus) MutateResponse {
	return &genericResponse{
		status: status,
		err:    statusError(status),
		key:    key,
	}
}

func NewMutateErrorResponse(key string, err error) MutateResponse {
	return &genericResponse{status: StatusInternalError, err: err, key: key}
}

func NewCountResponse(
	key string,
	status ResponseStatus,
	count uint64) CountResponse {

	return &genericResponse{
		status: status,
		err:    statusError(status),
		key:    key,
		count:  count,
	}
}

func NewCountErrorResponse(key string, err error) CountResponse {
	return &genericResponse{status: StatusInternalError, err: err, key: key}
}

func NewStatResponse(
	status ResponseStatus,
	entries map[string](map[string]string)) StatResponse {

	return &genericResponse{
		status:      status,
		err:         statusError(status),
		statEntries: entries,
	}
}

func NewStatErrorResponse(err error) StatResponse {
	return &genericResponse{status: StatusInternalError, err: err}
}

func NewVersionResponse(
	status ResponseStatus,
	versions map[string]string) VersionResponse {

	return &genericResponse{
		status:   status,
		err:      statusError(status),
		versions: versions,
	}
}

func NewVersionErrorResponse(err error) VersionResponse {
	return &genericResponse{status: StatusInternalError, err: err}
}
