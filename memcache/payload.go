package memcache

// Payload is the unit exchanged between Serializer, Compressor and the
// protocol drivers: opaque bytes plus the flag word stored alongside them.
type Payload struct {
	Data  []byte
	Flags uint32
}
