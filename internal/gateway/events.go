package gateway

import "github.com/kstaniek/go-xmodem/internal/xmodem"

// Event is one progress record broadcast to watch connections for the
// lifetime of an active transfer.
type Event struct {
	Seq        uint64 `json:"seq"`
	Stage      string `json:"stage"`
	BytesMoved int64  `json:"bytes_moved"`
	Mode       string `json:"mode"`
	Err        string `json:"err,omitempty"`
}

// Stage labels used in Event.Stage.
const (
	StageSyncing  = "syncing"
	StageTransfer = "transfer"
	StageDone     = "done"
	StageFailed   = "failed"
)

// resultLabel maps a terminal xmodem error (or nil) to a stable metrics
// session-result label.
func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	xe, ok := err.(*xmodem.Error)
	if !ok {
		return "other"
	}
	switch xe.Code() {
	case xmodem.CodeCancelledByRemote:
		return "cancelled_by_remote"
	case xmodem.CodeNoSync:
		return "no_sync"
	case xmodem.CodeTooManyRetries:
		return "too_many_retries"
	case xmodem.CodeTransmitError:
		return "transmit_error"
	case xmodem.CodeUnexpectedResponse:
		return "unexpected_response"
	case xmodem.CodeBufferFull:
		return "buffer_full"
	default:
		return "other"
	}
}
