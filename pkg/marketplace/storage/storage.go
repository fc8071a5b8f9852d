package storage

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jeka-org/agent-forge/pkg/types"
)

// ForgeStore is the single storage region behind the marketplace: the global
// task counter, the agent collection keyed by owner, the task collection
// keyed by derived id, and the spendable balance table.
//
// Every state transition runs inside one Update closure so a multi-record
// effect commits all-or-nothing; an error returned from the closure discards
// every staged write.
type ForgeStore interface {
	View(ctx context.Context, fn func(txn ReadTxn) error) error
	Update(ctx context.Context, fn func(txn Txn) error) error
	Close() error
}

// ReadTxn is the read surface available inside View and Update closures.
type ReadTxn interface {
	// Counter returns the current global task counter, zero when no task
	// has ever been created.
	Counter() (uint64, error)

	GetAgent(owner common.Address) (*types.Agent, error)
	GetTask(id common.Hash) (*types.Task, error)

	// GetBalance returns the spendable balance for addr, zero for unknown
	// addresses.
	GetBalance(addr common.Address) (uint64, error)
}

// Txn adds the write surface available inside Update closures.
type Txn interface {
	ReadTxn

	SetCounter(value uint64) error
	PutAgent(agent *types.Agent) error
	PutTask(task *types.Task) error
	SetBalance(addr common.Address, amount uint64) error
}
