package marketplace

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/jeka-org/agent-forge/pkg/auth"
	"github.com/jeka-org/agent-forge/pkg/clock"
	"github.com/jeka-org/agent-forge/pkg/config"
	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage"
	"github.com/jeka-org/agent-forge/pkg/taskid"
	"github.com/jeka-org/agent-forge/pkg/types"
	"github.com/jeka-org/agent-forge/pkg/util"
)

// Operation names. They are bound into every signature, so changing one
// invalidates existing client signing code.
const (
	OpRegisterAgent  = "registerAgent"
	OpSetAgentActive = "setAgentActive"
	OpCreateTask     = "createTask"
	OpAcceptTask     = "acceptTask"
	OpSubmitResult   = "submitResult"
	OpApproveResult  = "approveResult"
	OpExpireTask     = "expireTask"
)

// Marketplace is the escrow/task state machine plus the agent registry. It
// owns every transition over the store; nothing else writes to it. A single
// mutex gives operations the total order the ledger environment promises,
// and each transition runs inside one store Update so its effect is
// all-or-nothing.
type Marketplace struct {
	mu       sync.Mutex
	store    storage.ForgeStore
	clock    clock.Clock
	verifier *auth.Verifier
	events   EventSink
	logger   *zap.Logger
}

func NewMarketplace(store storage.ForgeStore, clk clock.Clock, events EventSink, logger *zap.Logger) *Marketplace {
	if events == nil {
		events = NewLogEventSink(logger)
	}
	return &Marketplace{
		store:    store,
		clock:    clk,
		verifier: auth.NewVerifier(),
		events:   events,
		logger:   logger,
	}
}

// RegisterAgentParams carries caller input for registerAgent.
type RegisterAgentParams struct {
	Name         string
	Capabilities []string
	HourlyRate   uint64
}

// CreateTaskParams carries caller input for createTask.
type CreateTaskParams struct {
	Description string
	Budget      uint64
	Deadline    int64
}

// SubmitResultParams carries caller input for submitResult.
type SubmitResultParams struct {
	TaskId    common.Hash
	ResultURI string
}

// RegisterAgent creates the agent record for the actor's identity. One
// agent per owner; re-registration is rejected rather than overwritten.
func (m *Marketplace) RegisterAgent(ctx context.Context, actor auth.Actor, params RegisterAgentParams) (*types.Agent, error) {
	payload := util.EncodeRegisterAgentMessage(actor.Address, params.Name, params.Capabilities, params.HourlyRate)
	if err := m.verifyActor(actor, OpRegisterAgent, payload); err != nil {
		return nil, err
	}

	if len(params.Name) > config.MaxAgentNameLength {
		return nil, ErrNameTooLong
	}
	if len(params.Capabilities) > config.MaxCapabilities {
		return nil, ErrTooManyCaps
	}
	for _, capability := range params.Capabilities {
		if len(capability) > config.MaxCapabilityLength {
			return nil, ErrCapabilityTooLong
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var agent *types.Agent
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		_, err := txn.GetAgent(actor.Address)
		if err == nil {
			return ErrAlreadyRegistered
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to look up agent: %w", err)
		}

		agent = &types.Agent{
			Owner:           actor.Address,
			Name:            params.Name,
			Capabilities:    params.Capabilities,
			HourlyRate:      params.HourlyRate,
			ReputationScore: config.BaseReputation,
			IsActive:        true,
			CreatedAt:       now,
		}
		return txn.PutAgent(agent)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(AgentRegisteredEvent{Owner: agent.Owner, Name: agent.Name})
	return agent, nil
}

// SetAgentActive toggles the actor's own agent between active and
// suspended. A suspended agent keeps its record and reputation but cannot
// accept new tasks.
func (m *Marketplace) SetAgentActive(ctx context.Context, actor auth.Actor, active bool) (*types.Agent, error) {
	payload := util.EncodeSetAgentActiveMessage(actor.Address, active)
	if err := m.verifyActor(actor, OpSetAgentActive, payload); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var agent *types.Agent
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		agent, err = txn.GetAgent(actor.Address)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrAgentNotFound
			}
			return fmt.Errorf("failed to look up agent: %w", err)
		}

		agent.IsActive = active
		return txn.PutAgent(agent)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(AgentStatusChangedEvent{Owner: agent.Owner, Active: active})
	return agent, nil
}

// CreateTask escrows the budget out of the creator's spendable balance and
// inserts the task. The id is derived from the creator and the counter value
// current at creation time, then the counter advances, all in one commit.
func (m *Marketplace) CreateTask(ctx context.Context, actor auth.Actor, params CreateTaskParams) (*types.Task, error) {
	payload := util.EncodeCreateTaskMessage(actor.Address, params.Description, params.Budget, params.Deadline)
	if err := m.verifyActor(actor, OpCreateTask, payload); err != nil {
		return nil, err
	}

	if params.Budget == 0 {
		return nil, ErrInvalidBudget
	}
	if len(params.Description) > config.MaxDescriptionLength {
		return nil, ErrDescriptionTooLong
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if params.Deadline <= now {
		return nil, ErrInvalidDeadline
	}

	var task *types.Task
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		balance, err := txn.GetBalance(actor.Address)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if balance < params.Budget {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, balance, params.Budget)
		}

		counter, err := txn.Counter()
		if err != nil {
			return fmt.Errorf("failed to read counter: %w", err)
		}

		id := taskid.DeriveTaskId(actor.Address, counter)
		if _, err := txn.GetTask(id); err == nil {
			return fmt.Errorf("task id collision for counter %d", counter)
		} else if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to look up task: %w", err)
		}

		if err := txn.SetCounter(counter + 1); err != nil {
			return fmt.Errorf("failed to advance counter: %w", err)
		}
		if err := txn.SetBalance(actor.Address, balance-params.Budget); err != nil {
			return fmt.Errorf("failed to escrow budget: %w", err)
		}

		task = &types.Task{
			Id:          id,
			Creator:     actor.Address,
			Description: params.Description,
			Budget:      params.Budget,
			Deadline:    params.Deadline,
			Status:      types.TaskStatusCreated,
			CreatedAt:   now,
		}
		return txn.PutTask(task)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(TaskCreatedEvent{TaskId: task.Id, Creator: task.Creator, Budget: task.Budget})
	return task, nil
}

// AcceptTask assigns the task to the actor's agent. The status guard makes
// exactly one of any number of racing accepts win; the rest fail with
// ErrInvalidState and leave nothing behind.
func (m *Marketplace) AcceptTask(ctx context.Context, actor auth.Actor, taskId common.Hash) (*types.Task, error) {
	payload := util.EncodeTaskActionMessage(actor.Address, taskId)
	if err := m.verifyActor(actor, OpAcceptTask, payload); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var task *types.Task
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		task, err = getTask(txn, taskId)
		if err != nil {
			return err
		}
		if task.Status != types.TaskStatusCreated {
			return fmt.Errorf("%w: cannot accept task in status %s", ErrInvalidState, task.Status)
		}
		if now >= task.Deadline {
			return ErrTaskExpired
		}

		agent, err := txn.GetAgent(actor.Address)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrAgentNotFound
			}
			return fmt.Errorf("failed to look up agent: %w", err)
		}
		if !agent.IsActive {
			return ErrAgentInactive
		}

		task.Status = types.TaskStatusAccepted
		task.AssignedAgent = actor.Address
		return txn.PutTask(task)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(TaskAcceptedEvent{TaskId: task.Id, Agent: task.AssignedAgent})
	return task, nil
}

// SubmitResult records the opaque result reference. Only the assigned agent
// may submit, and only once; submission before the deadline locks the task
// into the approval path even if the clock later passes the deadline.
func (m *Marketplace) SubmitResult(ctx context.Context, actor auth.Actor, params SubmitResultParams) (*types.Task, error) {
	payload := util.EncodeSubmitResultMessage(actor.Address, params.TaskId, params.ResultURI)
	if err := m.verifyActor(actor, OpSubmitResult, payload); err != nil {
		return nil, err
	}

	if params.ResultURI == "" {
		return nil, ErrEmptyResultURI
	}
	if len(params.ResultURI) > config.MaxResultURILength {
		return nil, ErrResultURITooLong
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var task *types.Task
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		task, err = getTask(txn, params.TaskId)
		if err != nil {
			return err
		}
		if task.AssignedAgent != actor.Address {
			return fmt.Errorf("%w: caller is not the assigned agent", ErrUnauthorized)
		}
		if task.Status != types.TaskStatusAccepted {
			return fmt.Errorf("%w: cannot submit result for task in status %s", ErrInvalidState, task.Status)
		}

		task.ResultURI = params.ResultURI
		task.Status = types.TaskStatusSubmitted
		return txn.PutTask(task)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(ResultSubmittedEvent{TaskId: task.Id, ResultURI: task.ResultURI})
	return task, nil
}

// ApproveResult releases the escrowed budget to the assigned agent and
// credits its reputation. The status guard makes the release exactly-once.
func (m *Marketplace) ApproveResult(ctx context.Context, actor auth.Actor, taskId common.Hash) (*types.Task, error) {
	payload := util.EncodeTaskActionMessage(actor.Address, taskId)
	if err := m.verifyActor(actor, OpApproveResult, payload); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var task *types.Task
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		task, err = getTask(txn, taskId)
		if err != nil {
			return err
		}
		if task.Creator != actor.Address {
			return fmt.Errorf("%w: caller is not the task creator", ErrUnauthorized)
		}
		if task.Status != types.TaskStatusSubmitted {
			return fmt.Errorf("%w: cannot approve task in status %s", ErrInvalidState, task.Status)
		}

		agent, err := txn.GetAgent(task.AssignedAgent)
		if err != nil {
			return fmt.Errorf("failed to look up assigned agent %s: %w", task.AssignedAgent, err)
		}

		if err := creditBalance(txn, agent.Owner, task.Budget); err != nil {
			return err
		}

		agent.ReputationScore++
		agent.TasksCompleted++
		agent.TotalEarned += task.Budget
		if err := txn.PutAgent(agent); err != nil {
			return fmt.Errorf("failed to update agent: %w", err)
		}

		task.Status = types.TaskStatusApproved
		return txn.PutTask(task)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(TaskApprovedEvent{TaskId: task.Id, Agent: task.AssignedAgent, Payout: task.Budget})
	return task, nil
}

// ExpireTask returns the escrowed budget to the creator once the deadline
// has passed. Any party may trigger it; a task that already reached
// Submitted is never expirable.
func (m *Marketplace) ExpireTask(ctx context.Context, actor auth.Actor, taskId common.Hash) (*types.Task, error) {
	payload := util.EncodeTaskActionMessage(actor.Address, taskId)
	if err := m.verifyActor(actor, OpExpireTask, payload); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	var task *types.Task
	err := m.store.Update(ctx, func(txn storage.Txn) error {
		var err error
		task, err = getTask(txn, taskId)
		if err != nil {
			return err
		}
		if task.Status != types.TaskStatusCreated && task.Status != types.TaskStatusAccepted {
			return fmt.Errorf("%w: cannot expire task in status %s", ErrInvalidState, task.Status)
		}
		if now < task.Deadline {
			return ErrDeadlineNotReached
		}

		if err := creditBalance(txn, task.Creator, task.Budget); err != nil {
			return err
		}

		task.Status = types.TaskStatusExpired
		return txn.PutTask(task)
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(TaskExpiredEvent{TaskId: task.Id, Creator: task.Creator, Refunded: task.Budget})
	return task, nil
}

// Counter exposes the current global counter so callers can predict the id
// of the task they are about to create.
func (m *Marketplace) Counter(ctx context.Context) (uint64, error) {
	var counter uint64
	err := m.store.View(ctx, func(txn storage.ReadTxn) error {
		var err error
		counter, err = txn.Counter()
		return err
	})
	return counter, err
}

// GetAgent fetches the agent record for an owner identity.
func (m *Marketplace) GetAgent(ctx context.Context, owner common.Address) (*types.Agent, error) {
	var agent *types.Agent
	err := m.store.View(ctx, func(txn storage.ReadTxn) error {
		var err error
		agent, err = txn.GetAgent(owner)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrAgentNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// GetTask fetches the task record for a derived identifier.
func (m *Marketplace) GetTask(ctx context.Context, taskId common.Hash) (*types.Task, error) {
	var task *types.Task
	err := m.store.View(ctx, func(txn storage.ReadTxn) error {
		var err error
		task, err = txn.GetTask(taskId)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTaskNotFound
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// GetBalance fetches the spendable balance for an address.
func (m *Marketplace) GetBalance(ctx context.Context, addr common.Address) (uint64, error) {
	var balance uint64
	err := m.store.View(ctx, func(txn storage.ReadTxn) error {
		var err error
		balance, err = txn.GetBalance(addr)
		return err
	})
	return balance, err
}

// ApplyGenesis seeds spendable balances at startup. Funding is the ledger
// environment's concern; after genesis only the state machine moves value.
func (m *Marketplace) ApplyGenesis(ctx context.Context, allocations []marketplaceConfig.GenesisAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.store.Update(ctx, func(txn storage.Txn) error {
		for _, alloc := range allocations {
			addr := common.HexToAddress(alloc.Address)
			if err := creditBalance(txn, addr, alloc.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *Marketplace) verifyActor(actor auth.Actor, opName string, payload []byte) error {
	if err := m.verifier.VerifyActor(actor, opName, payload); err != nil {
		m.logger.Sugar().Debugw("authorization failed",
			"operation", opName,
			"claimed", actor.Address,
			"error", err,
		)
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

func getTask(txn storage.ReadTxn, taskId common.Hash) (*types.Task, error) {
	task, err := txn.GetTask(taskId)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("failed to look up task: %w", err)
	}
	return task, nil
}

func creditBalance(txn storage.Txn, addr common.Address, amount uint64) error {
	balance, err := txn.GetBalance(addr)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance > math.MaxUint64-amount {
		return fmt.Errorf("balance overflow crediting %d to %s", amount, addr)
	}
	return txn.SetBalance(addr, balance+amount)
}
