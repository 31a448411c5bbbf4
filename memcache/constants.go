package memcache

import "time"

type ResponseStatus uint16

// Binary protocol response statuses.  The text protocol drivers map reply
// keywords onto the same taxonomy.
const (
	StatusNoError                       = ResponseStatus(0x0000)
	StatusKeyNotFound                   = ResponseStatus(0x0001)
	StatusKeyExists                     = ResponseStatus(0x0002)
	StatusValueTooLarge                 = ResponseStatus(0x0003)
	StatusInvalidArguments              = ResponseStatus(0x0004)
	StatusItemNotStored                 = ResponseStatus(0x0005)
	StatusIncrDecrOnNonNumericValue     = ResponseStatus(0x0006)
	StatusVbucketBelongsToAnotherServer = ResponseStatus(0x0007)
	StatusAuthenticationError           = ResponseStatus(0x0008)
	StatusAuthenticationContinue        = ResponseStatus(0x0009)
	StatusUnknownCommand                = ResponseStatus(0x0081)
	StatusOutOfMemory                   = ResponseStatus(0x0082)
	StatusNotSupported                  = ResponseStatus(0x0083)
	StatusInternalError                 = ResponseStatus(0x0084)
	StatusBusy                          = ResponseStatus(0x0085)
	StatusTempFailure                   = ResponseStatus(0x0086)
)

type opCode uint8

// Binary protocol opcodes.
const (
	opGet       = opCode(0x00)
	opSet       = opCode(0x01)
	opAdd       = opCode(0x02)
	opReplace   = opCode(0x03)
	opDelete    = opCode(0x04)
	opIncrement = opCode(0x05)
	opDecrement = opCode(0x06)
	opQuit      = opCode(0x07)
	opFlush     = opCode(0x08)
	opNoop      = opCode(0x0a)
	opVersion   = opCode(0x0b)
	opGetK      = opCode(0x0c)
	opGetKQ     = opCode(0x0d)
	opAppend    = opCode(0x0e)
	opPrepend   = opCode(0x0f)
	opStat      = opCode(0x10)
)

const (
	reqMagicByte  = 0x80
	respMagicByte = 0x81
)

// Payload flag bits.  A receiver undoes transformations in reverse order:
// decompress before deserialize.
const (
	FlagSerialized = uint32(1 << 0)
	FlagCompressed = uint32(1 << 1)
	FlagJSON       = uint32(1 << 2)
)

const (
	maxKeyLength   = 250
	maxValueLength = 1024 * 1024

	defaultPort = "11211"

	// Expiration sentinel for increment / decrement: the counter is not
	// seeded when the key is absent.
	noCreateExpiration = uint32(0xffffffff)

	defaultConnectTimeout    = 500 * time.Millisecond
	maxConsecutiveTimeouts   = 5
	defaultCompressThreshold = 10000

	// Compressed payloads are adopted only when at least this much smaller.
	minCompressSavings = 0.20
)
