package util

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// GetKeccak256Digest returns the keccak256 digest of data as a fixed-width
// array.
func GetKeccak256Digest(data []byte) [32]byte {
	return [32]byte(crypto.Keccak256Hash(data))
}

// Canonical signing-bytes encoders for every mutating operation. Each field
// occupies exactly 32 bytes: addresses are left-padded, integers big-endian
// in the low bytes, variable-length strings enter as keccak digests. Clients
// must produce byte-identical encodings, so the layouts below are part of
// the wire contract.

// RegisterAgentSignatureData is signed by the owner when registering.
type RegisterAgentSignatureData struct {
	Owner              common.Address
	NameDigest         [32]byte
	CapabilitiesDigest [32]byte
	HourlyRate         uint64
}

// ToSigningBytes encodes owner(32) || nameDigest(32) || capsDigest(32) ||
// hourlyRate(32). Total: 128 bytes.
func (d *RegisterAgentSignatureData) ToSigningBytes() []byte {
	result := make([]byte, 0, 128)
	result = append(result, common.LeftPadBytes(d.Owner.Bytes(), 32)...)
	result = append(result, d.NameDigest[:]...)
	result = append(result, d.CapabilitiesDigest[:]...)
	result = append(result, encodeUint64(d.HourlyRate)...)
	return result
}

// SetAgentActiveSignatureData is signed by the owner when toggling
// suspension.
type SetAgentActiveSignatureData struct {
	Owner  common.Address
	Active bool
}

// ToSigningBytes encodes owner(32) || active(32). Total: 64 bytes.
func (d *SetAgentActiveSignatureData) ToSigningBytes() []byte {
	result := make([]byte, 0, 64)
	result = append(result, common.LeftPadBytes(d.Owner.Bytes(), 32)...)
	active := make([]byte, 32)
	if d.Active {
		active[31] = 1
	}
	result = append(result, active...)
	return result
}

// CreateTaskSignatureData is signed by the creator when escrowing a task.
type CreateTaskSignatureData struct {
	Creator           common.Address
	DescriptionDigest [32]byte
	Budget            uint64
	Deadline          int64
}

// ToSigningBytes encodes creator(32) || descriptionDigest(32) ||
// budget(32) || deadline(32). Total: 128 bytes.
func (d *CreateTaskSignatureData) ToSigningBytes() []byte {
	result := make([]byte, 0, 128)
	result = append(result, common.LeftPadBytes(d.Creator.Bytes(), 32)...)
	result = append(result, d.DescriptionDigest[:]...)
	result = append(result, encodeUint64(d.Budget)...)
	result = append(result, encodeUint64(uint64(d.Deadline))...)
	return result
}

// TaskActionSignatureData covers the operations that reference an existing
// task without extra payload: accept, approve, expire.
type TaskActionSignatureData struct {
	Actor  common.Address
	TaskId common.Hash
}

// ToSigningBytes encodes actor(32) || taskId(32). Total: 64 bytes.
func (d *TaskActionSignatureData) ToSigningBytes() []byte {
	result := make([]byte, 0, 64)
	result = append(result, common.LeftPadBytes(d.Actor.Bytes(), 32)...)
	result = append(result, d.TaskId.Bytes()...)
	return result
}

// SubmitResultSignatureData is signed by the assigned agent when delivering
// a result reference.
type SubmitResultSignatureData struct {
	Agent           common.Address
	TaskId          common.Hash
	ResultURIDigest [32]byte
}

// ToSigningBytes encodes agent(32) || taskId(32) || resultUriDigest(32).
// Total: 96 bytes.
func (d *SubmitResultSignatureData) ToSigningBytes() []byte {
	result := make([]byte, 0, 96)
	result = append(result, common.LeftPadBytes(d.Agent.Bytes(), 32)...)
	result = append(result, d.TaskId.Bytes()...)
	result = append(result, d.ResultURIDigest[:]...)
	return result
}

// EncodeRegisterAgentMessage builds the signing bytes for registerAgent.
func EncodeRegisterAgentMessage(owner common.Address, name string, capabilities []string, hourlyRate uint64) []byte {
	sigData := &RegisterAgentSignatureData{
		Owner:              owner,
		NameDigest:         GetKeccak256Digest([]byte(name)),
		CapabilitiesDigest: digestStringList(capabilities),
		HourlyRate:         hourlyRate,
	}
	return sigData.ToSigningBytes()
}

// EncodeSetAgentActiveMessage builds the signing bytes for setAgentActive.
func EncodeSetAgentActiveMessage(owner common.Address, active bool) []byte {
	sigData := &SetAgentActiveSignatureData{Owner: owner, Active: active}
	return sigData.ToSigningBytes()
}

// EncodeCreateTaskMessage builds the signing bytes for createTask.
func EncodeCreateTaskMessage(creator common.Address, description string, budget uint64, deadline int64) []byte {
	sigData := &CreateTaskSignatureData{
		Creator:           creator,
		DescriptionDigest: GetKeccak256Digest([]byte(description)),
		Budget:            budget,
		Deadline:          deadline,
	}
	return sigData.ToSigningBytes()
}

// EncodeTaskActionMessage builds the signing bytes for acceptTask,
// approveResult and expireTask.
func EncodeTaskActionMessage(actor common.Address, taskId common.Hash) []byte {
	sigData := &TaskActionSignatureData{Actor: actor, TaskId: taskId}
	return sigData.ToSigningBytes()
}

// EncodeSubmitResultMessage builds the signing bytes for submitResult.
func EncodeSubmitResultMessage(agent common.Address, taskId common.Hash, resultURI string) []byte {
	sigData := &SubmitResultSignatureData{
		Agent:           agent,
		TaskId:          taskId,
		ResultURIDigest: GetKeccak256Digest([]byte(resultURI)),
	}
	return sigData.ToSigningBytes()
}

// digestStringList hashes the concatenation of each element's digest so the
// encoding is unambiguous under element boundaries.
func digestStringList(items []string) [32]byte {
	buf := make([]byte, 0, len(items)*32)
	for _, item := range items {
		digest := GetKeccak256Digest([]byte(item))
		buf = append(buf, digest[:]...)
	}
	return GetKeccak256Digest(buf)
}

func encodeUint64(value uint64) []byte {
	out := make([]byte, 32)
	binary.BigEndian.PutUint64(out[24:], value)
	return out
}
