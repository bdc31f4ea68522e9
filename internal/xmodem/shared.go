package xmodem

import "context"

// drainAndCancel leaves the link quiescent and signals a terminal failure to
// the peer with three CANs, the shape every budget-exhaustion error path
// uses.
func drainAndCancel(ctx context.Context, t Transport, cfg *config) {
	t.DrainInput(ctx, cfg.drainTimeout)
	_ = t.OutByte(ctx, can)
	_ = t.OutByte(ctx, can)
	_ = t.OutByte(ctx, can)
}

// drainAndAck leaves the link quiescent and ACKs, the shape used both for a
// clean EOT and for acknowledging the peer's own cancel.
func drainAndAck(ctx context.Context, t Transport, cfg *config) error {
	t.DrainInput(ctx, cfg.drainTimeout)
	return t.OutByte(ctx, ack)
}
