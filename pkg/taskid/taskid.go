package taskid

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// DeriveTaskId computes the identifier of the task created by creator while
// the global counter held counter:
//
//	keccak256(creator[20] || be64(counter))
//
// The encoding is bit-exact so any caller can recompute an id ahead of
// submission from the creator address and the counter accessor.
func DeriveTaskId(creator common.Address, counter uint64) common.Hash {
	buf := make([]byte, 0, common.AddressLength+8)
	buf = append(buf, creator.Bytes()...)

	var counterBytes [8]byte
	binary.BigEndian.PutUint64(counterBytes[:], counter)
	buf = append(buf, counterBytes[:]...)

	return crypto.Keccak256Hash(buf)
}
