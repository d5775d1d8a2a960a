package consensus

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/rabia-project/rabia/types"
)

// sharedCoin implements §4.4.5: a pure function of the cluster id and the
// phase number, so every node flipping the coin for the same phase gets the
// same answer without any communication.
func sharedCoin(clusterId string, p types.Phase) types.StateValue {
	h := sha256.New()
	h.Write([]byte(clusterId))
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(p))
	h.Write(buf[:])
	sum := h.Sum(nil)
	if sum[0]&0x80 != 0 {
		return types.V1
	}
	return types.V0
}

// clusterId derives the cluster-level constant the coin is salted with from
// the fixed, sorted member list, so every node computes the same string
// without needing an explicit cluster-name configuration option.
func clusterId(members []types.NodeId) string {
	sorted := types.SortNodeIds(members)
	s := ""
	for i, id := range sorted {
		if i > 0 {
			s += ","
		}
		s += string(id)
	}
	return s
}
