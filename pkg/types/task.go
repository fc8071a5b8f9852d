package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// TaskStatus is the closed set of lifecycle states a task moves through.
// Transitions are linear: Created -> Accepted -> Submitted -> Approved, with
// Created and Accepted also able to reach Expired. Approved and Expired are
// terminal.
type TaskStatus uint8

const (
	TaskStatusCreated TaskStatus = iota
	TaskStatusAccepted
	TaskStatusSubmitted
	TaskStatusApproved
	TaskStatusExpired
)

func (s TaskStatus) String() string {
	switch s {
	case TaskStatusCreated:
		return "created"
	case TaskStatusAccepted:
		return "accepted"
	case TaskStatusSubmitted:
		return "submitted"
	case TaskStatusApproved:
		return "approved"
	case TaskStatusExpired:
		return "expired"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// IsTerminal reports whether no further transition can touch the task.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusApproved || s == TaskStatusExpired
}

// Task is the escrow record for one unit of work. Id is derived from
// (creator, counter) and is never caller-chosen. Budget is held in escrow
// from creation until approval or expiry.
type Task struct {
	Id common.Hash `json:"id"`

	Creator common.Address `json:"creator"`

	Description string `json:"description"`

	// Budget is the escrowed amount, already deducted from the creator's
	// spendable balance while the task is non-terminal.
	Budget uint64 `json:"budget"`

	// Deadline is unix seconds on the ledger clock.
	Deadline int64 `json:"deadline"`

	Status TaskStatus `json:"status"`

	// AssignedAgent is the zero address until the task is accepted and
	// never changes afterwards.
	AssignedAgent common.Address `json:"assignedAgent"`

	// ResultURI is an opaque reference to off-ledger result content. Its
	// semantic correctness is not this system's concern.
	ResultURI string `json:"resultUri,omitempty"`

	CreatedAt int64 `json:"createdAt"`
}
