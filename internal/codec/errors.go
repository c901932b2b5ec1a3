package codec

import "errors"

// ErrDecode is wrapped by every decode failure: malformed input, truncated
// payload, invalid UTF-8, invalid date components, invalid principal or
// UUID length.
var ErrDecode = errors.New("codec: decode error")

// ErrOffsetNotAligned signals a write offset that violates the table's
// alignment invariant. The caller must not retry — this indicates
// corruption (§4.2).
var ErrOffsetNotAligned = errors.New("codec: offset not aligned")

// ErrIncomparable is returned by Compare when two Values of different
// kinds (other than Null) are compared.
var ErrIncomparable = errors.New("codec: cross-kind comparison")
