package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Agent is the registry record for one autonomous worker identity. There is
// at most one Agent per owner address and it is never deleted.
type Agent struct {
	Owner common.Address `json:"owner"`

	Name string `json:"name"`

	// Capabilities are advisory tags; the state machine never matches
	// tasks against them.
	Capabilities []string `json:"capabilities,omitempty"`

	// HourlyRate is informational, in the ledger's smallest currency unit.
	HourlyRate uint64 `json:"hourlyRate"`

	// ReputationScore only ever increases, and only on task approval.
	ReputationScore uint64 `json:"reputationScore"`

	TasksCompleted uint64 `json:"tasksCompleted"`
	TotalEarned    uint64 `json:"totalEarned"`

	// IsActive gates acceptance of new tasks. Only the owner may toggle it.
	IsActive bool `json:"isActive"`

	CreatedAt int64 `json:"createdAt"`
}
