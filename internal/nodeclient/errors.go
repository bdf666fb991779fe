package nodeclient

import "errors"

// Error kinds per spec.md §4.B / §7. TransientRpc is retried by the
// reconnecting client itself; PermanentRpc is surfaced to the
// consuming actor, which logs and continues; DecodeError marks an
// unknown wire variant (e.g. Base's 0x7e/0x7f/0x80 envelopes).
var (
	ErrTransientRpc = errors.New("nodeclient: transient rpc error")
	ErrPermanentRpc = errors.New("nodeclient: permanent rpc error, gave up after max attempts")
	ErrDecode       = errors.New("nodeclient: decode error")
)

// Transient wraps err as a retryable TransientRpc error.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: ErrTransientRpc, cause: err}
}

// Permanent wraps err as a non-retryable PermanentRpc error.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &wrapped{kind: ErrPermanentRpc, cause: err}
}

type wrapped struct {
	kind  error
	cause error
}

func (w *wrapped) Error() string { return w.kind.Error() + ": " + w.cause.Error() }
func (w *wrapped) Unwrap() []error { return []error{w.kind, w.cause} }
