package matchy

import "fmt"

// Status is a stable integer status code. Values are part of the native call
// surface (adapter layers remap these to their own idioms) and MUST NOT be
// renumbered.
type Status int

// Status codes, stable across releases.
const (
	StatusSuccess                     Status = 0
	StatusFileOpenError               Status = 1
	StatusCorruptSearchTree           Status = 2
	StatusInvalidMetadata             Status = 3
	StatusIOError                     Status = 4
	StatusOutOfMemory                 Status = 5
	StatusUnknownDBFormat             Status = 6
	StatusInvalidData                 Status = 7
	StatusLookupPathInvalid           Status = 8
	StatusLookupPathDoesNotMatchData  Status = 9
	StatusInvalidNodeNumber           Status = 10
	StatusIPv6InIPv4DB                Status = 11
	StatusInvalidParam                Status = 12
	StatusNoData                      Status = 13
)

var statusText = map[Status]string{
	StatusSuccess:                    "success",
	StatusFileOpenError:              "could not open file",
	StatusCorruptSearchTree:          "corrupt search tree",
	StatusInvalidMetadata:            "invalid metadata",
	StatusIOError:                    "I/O error",
	StatusOutOfMemory:                "out of memory",
	StatusUnknownDBFormat:            "unknown database format",
	StatusInvalidData:                "invalid data",
	StatusLookupPathInvalid:          "lookup path invalid",
	StatusLookupPathDoesNotMatchData: "lookup path does not match data",
	StatusInvalidNodeNumber:          "invalid node number",
	StatusIPv6InIPv4DB:               "IPv6 address looked up in an IPv4-only database",
	StatusInvalidParam:               "invalid parameter",
	StatusNoData:                     "no data",
}

// Strerror returns a human-readable description of a status code, mirroring
// the native call surface's strerror-shaped helper.
func Strerror(s Status) string {
	if txt, ok := statusText[s]; ok {
		return txt
	}
	return "unknown status"
}

// Error is the typed error every Matchy operation returns on failure. Its
// Code is one of the stable Status values so adapter layers can map it
// straight onto the native call surface's integer return without re-deriving
// it from string matching.
type Error struct {
	Code Status
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return Strerror(e.Code)
	}
	return fmt.Sprintf("matchy: %s: %s", Strerror(e.Code), e.Msg)
}

func newError(code Status, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Sentinel errors for the common, stateless cases — flat values, no %w
// wrapping chains.
var (
	ErrNotFound         = &Error{Code: StatusNoData, Msg: "key not found"}
	ErrClosed           = &Error{Code: StatusInvalidParam, Msg: "database is closed"}
	ErrBadMagic         = &Error{Code: StatusUnknownDBFormat, Msg: "bad magic byte sequence"}
	ErrBadVersion       = &Error{Code: StatusUnknownDBFormat, Msg: "unsupported format version"}
	ErrBadCRC           = &Error{Code: StatusInvalidMetadata, Msg: "footer CRC mismatch"}
	ErrOutOfBounds      = &Error{Code: StatusInvalidData, Msg: "offset out of bounds"}
	ErrPointerCycle     = &Error{Code: StatusInvalidData, Msg: "pointer cycle or chain too deep"}
	ErrLookupInvalid    = &Error{Code: StatusLookupPathInvalid, Msg: "lookup path invalid"}
	ErrLookupMismatch   = &Error{Code: StatusLookupPathDoesNotMatchData, Msg: "lookup path does not match data"}
	ErrIPv6InIPv4DB     = &Error{Code: StatusIPv6InIPv4DB, Msg: "IPv6 key outside v4-mapped range in a v4-only database"}
	ErrNoPatternData    = &Error{Code: StatusNoData, Msg: "database has no pattern section"}
	ErrInvalidParam     = &Error{Code: StatusInvalidParam, Msg: "invalid parameter"}
	ErrOutOfOrderAppend = &Error{Code: StatusInvalidData, Msg: "builder entries must be added before Build"}
)
