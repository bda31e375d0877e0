package pof

import (
	"context"
	"fmt"
)

// ValueMap is a ValueSource backed by a fixed table keyed by
// "txid:vout". It serves tests and deployments that preload a UTXO
// snapshot; a live chain index implements ValueSource directly.
type ValueMap map[string]int64

func (m ValueMap) OutputValue(_ context.Context, txid string, vout uint32) (int64, error) {
	value, ok := m[fmt.Sprintf("%s:%d", txid, vout)]
	if !ok {
		return 0, fmt.Errorf("pof: unknown output %s:%d", txid, vout)
	}
	return value, nil
}
