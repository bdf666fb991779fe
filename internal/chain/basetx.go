package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Base-specific transaction envelope type tags (§6, §11.1). Base (an
// OP-Stack chain) defines deposit and reserved envelopes outside the
// standard Ethereum set; a node's JSON-RPC may return one of these
// for a pending or mined tx.
const (
	BaseTxTypeDeposit  = 0x7e
	BaseTxTypeReserved1 = 0x7f
	BaseTxTypeReserved2 = 0x80
)

// ErrUnknownTxVariant marks a decode failure caused by one of the
// Base-specific envelopes above; it is a DecodeError (§7) and must
// never fail the caller's block processing.
type ErrUnknownTxVariant struct {
	Hash common.Hash
	Type byte
}

func (e *ErrUnknownTxVariant) Error() string {
	return fmt.Sprintf("chain: unknown tx variant 0x%x for %s", e.Type, e.Hash)
}

// IsBaseEnvelope reports whether typ is one of the Base-specific
// envelope tags this core does not attempt to simulate.
func IsBaseEnvelope(typ byte) bool {
	return typ == BaseTxTypeDeposit || typ == BaseTxTypeReserved1 || typ == BaseTxTypeReserved2
}

// DecodeBaseTx best-effort-decodes raw transaction RPC JSON that may
// use a Base-specific envelope. On success it returns a *types.Transaction;
// on an unrecognized envelope it logs a warning and returns (nil, nil)
// rather than an error, per §6: "best-effort, never fail the block."
// decodeErr is the error the standard decoder produced, used only to
// classify whether this is in fact an envelope issue versus some other
// failure that should propagate.
func DecodeBaseTx(hash common.Hash, raw []byte, decodeErr error) (*types.Transaction, error) {
	if decodeErr == nil {
		var tx types.Transaction
		if err := tx.UnmarshalJSON(raw); err == nil {
			return &tx, nil
		}
	}
	msg := ""
	if decodeErr != nil {
		msg = decodeErr.Error()
	}
	if looksLikeBaseEnvelopeError(msg) {
		log.Warn("skipping Base-specific transaction envelope", "hash", hash, "err", msg)
		return nil, nil
	}
	return nil, decodeErr
}

func looksLikeBaseEnvelopeError(msg string) bool {
	if !strings.Contains(msg, "unknown variant") && !strings.Contains(msg, "transaction type not supported") {
		return false
	}
	return strings.Contains(msg, "0x7e") || strings.Contains(msg, "0x7f") || strings.Contains(msg, "0x80")
}
