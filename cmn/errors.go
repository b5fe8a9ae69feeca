package cmn

import "github.com/pkg/errors"

// Sentinel errors for the taxonomy in spec §7. Wrapped with
// github.com/pkg/errors (a direct teacher dependency) wherever call sites
// need to attach context without losing Is/As-style identity.
var (
	// ErrProtocol covers mismatched barrier_nr, wrong set_size, or an ack
	// without the corresponding EXP_*_ACK bit.
	ErrProtocol = errors.New("protocol error")

	// ErrResourceExhausted covers request-alloc failure and a full transfer log.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrLocalDisk covers LOCAL_COMPLETED && !LOCAL_OK.
	ErrLocalDisk = errors.New("local disk error")

	// ErrDisconnected covers a network send error or ack timeout that
	// transitioned cstate to Timeout or BrokenPipe.
	ErrDisconnected = errors.New("peer disconnected")
)

// WrapProtocol annotates ErrProtocol with call-site detail; callers log it
// at critical level per spec §7 ("logged at critical level... preserved
// only as far as necessary to keep the machine live").
func WrapProtocol(format string, args ...any) error {
	return errors.Wrapf(ErrProtocol, format, args...)
}
