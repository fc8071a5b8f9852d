package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jeka-org/agent-forge/pkg/marketplace/storage"
	"github.com/jeka-org/agent-forge/pkg/types"
)

// InMemoryForgeStore implements ForgeStore with in-memory maps. Update
// closures write to a staged overlay that is merged into the base maps only
// when the closure returns nil, so a failed transition leaves no trace.
type InMemoryForgeStore struct {
	mu       sync.RWMutex
	closed   bool
	counter  uint64
	agents   map[common.Address]*types.Agent
	tasks    map[common.Hash]*types.Task
	balances map[common.Address]uint64
}

// NewInMemoryForgeStore creates a new in-memory forge store
func NewInMemoryForgeStore() *InMemoryForgeStore {
	return &InMemoryForgeStore{
		agents:   make(map[common.Address]*types.Agent),
		tasks:    make(map[common.Hash]*types.Task),
		balances: make(map[common.Address]uint64),
	}
}

func (s *InMemoryForgeStore) View(ctx context.Context, fn func(txn storage.ReadTxn) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return storage.ErrStoreClosed
	}

	return fn(&readTxn{store: s})
}

func (s *InMemoryForgeStore) Update(ctx context.Context, fn func(txn storage.Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}

	txn := &writeTxn{
		store:    s,
		agents:   make(map[common.Address]*types.Agent),
		tasks:    make(map[common.Hash]*types.Task),
		balances: make(map[common.Address]uint64),
	}
	if err := fn(txn); err != nil {
		return err
	}

	txn.commit()
	return nil
}

// Close closes the store
func (s *InMemoryForgeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}

	s.closed = true
	s.agents = nil
	s.tasks = nil
	s.balances = nil
	return nil
}

// readTxn reads the committed base state. The store lock is held for the
// life of the closure.
type readTxn struct {
	store *InMemoryForgeStore
}

func (t *readTxn) Counter() (uint64, error) {
	return t.store.counter, nil
}

func (t *readTxn) GetAgent(owner common.Address) (*types.Agent, error) {
	agent, exists := t.store.agents[owner]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAgent(agent), nil
}

func (t *readTxn) GetTask(id common.Hash) (*types.Task, error) {
	task, exists := t.store.tasks[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyTask(task), nil
}

func (t *readTxn) GetBalance(addr common.Address) (uint64, error) {
	return t.store.balances[addr], nil
}

// writeTxn stages writes in overlay maps and commits them as one unit.
type writeTxn struct {
	store    *InMemoryForgeStore
	counter  *uint64
	agents   map[common.Address]*types.Agent
	tasks    map[common.Hash]*types.Task
	balances map[common.Address]uint64
}

func (t *writeTxn) Counter() (uint64, error) {
	if t.counter != nil {
		return *t.counter, nil
	}
	return t.store.counter, nil
}

func (t *writeTxn) GetAgent(owner common.Address) (*types.Agent, error) {
	if agent, staged := t.agents[owner]; staged {
		return copyAgent(agent), nil
	}
	agent, exists := t.store.agents[owner]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyAgent(agent), nil
}

func (t *writeTxn) GetTask(id common.Hash) (*types.Task, error) {
	if task, staged := t.tasks[id]; staged {
		return copyTask(task), nil
	}
	task, exists := t.store.tasks[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	return copyTask(task), nil
}

func (t *writeTxn) GetBalance(addr common.Address) (uint64, error) {
	if balance, staged := t.balances[addr]; staged {
		return balance, nil
	}
	return t.store.balances[addr], nil
}

func (t *writeTxn) SetCounter(value uint64) error {
	t.counter = &value
	return nil
}

func (t *writeTxn) PutAgent(agent *types.Agent) error {
	if agent == nil {
		return storage.ErrNilRecord
	}
	t.agents[agent.Owner] = copyAgent(agent)
	return nil
}

func (t *writeTxn) PutTask(task *types.Task) error {
	if task == nil {
		return storage.ErrNilRecord
	}
	t.tasks[task.Id] = copyTask(task)
	return nil
}

func (t *writeTxn) SetBalance(addr common.Address, amount uint64) error {
	t.balances[addr] = amount
	return nil
}

func (t *writeTxn) commit() {
	if t.counter != nil {
		t.store.counter = *t.counter
	}
	for owner, agent := range t.agents {
		t.store.agents[owner] = agent
	}
	for id, task := range t.tasks {
		t.store.tasks[id] = task
	}
	for addr, balance := range t.balances {
		t.store.balances[addr] = balance
	}
}

func copyAgent(agent *types.Agent) *types.Agent {
	out := *agent
	out.Capabilities = slices.Clone(agent.Capabilities)
	return &out
}

func copyTask(task *types.Task) *types.Task {
	out := *task
	return &out
}
