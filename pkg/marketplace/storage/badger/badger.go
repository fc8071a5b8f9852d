package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badgerv3 "github.com/dgraph-io/badger/v3"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage"
	"github.com/jeka-org/agent-forge/pkg/types"
)

// Key layout for the single storage region
const (
	keyCounter    = "counter"
	prefixAgent   = "agent:%s"
	prefixTask    = "task:%s"
	prefixBalance = "balance:%s"
)

// BadgerForgeStore implements the ForgeStore interface using BadgerDB.
// Badger transactions give the all-or-nothing commit the Update contract
// requires.
type BadgerForgeStore struct {
	db       *badgerv3.DB
	mu       sync.RWMutex
	closed   bool
	closeCh  chan struct{}
	gcTicker *time.Ticker
}

// NewBadgerForgeStore creates a new BadgerDB-backed forge store
func NewBadgerForgeStore(cfg *marketplaceConfig.BadgerConfig) (*BadgerForgeStore, error) {
	if cfg == nil {
		return nil, errors.New("badger config is nil")
	}

	opts := badgerv3.DefaultOptions(cfg.Dir)
	opts.Logger = nil // Disable BadgerDB's default logging

	if cfg.InMemory {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}
	if cfg.ValueLogFileSize > 0 {
		opts.ValueLogFileSize = cfg.ValueLogFileSize
	}

	db, err := badgerv3.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	s := &BadgerForgeStore{
		db:      db,
		closeCh: make(chan struct{}),
	}

	s.gcTicker = time.NewTicker(5 * time.Minute)
	go s.runGC()

	return s, nil
}

// runGC runs periodic value log garbage collection
func (s *BadgerForgeStore) runGC() {
	for {
		select {
		case <-s.gcTicker.C:
			s.mu.RLock()
			if s.closed {
				s.mu.RUnlock()
				return
			}
			s.mu.RUnlock()

			_ = s.db.RunValueLogGC(0.5)
		case <-s.closeCh:
			return
		}
	}
}

func (s *BadgerForgeStore) View(ctx context.Context, fn func(txn storage.ReadTxn) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.db.View(func(txn *badgerv3.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

func (s *BadgerForgeStore) Update(ctx context.Context, fn func(txn storage.Txn) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrStoreClosed
	}
	s.mu.RUnlock()

	return s.db.Update(func(txn *badgerv3.Txn) error {
		return fn(&badgerTxn{txn: txn})
	})
}

// Close closes the store and the underlying database
func (s *BadgerForgeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStoreClosed
	}

	s.closed = true
	s.gcTicker.Stop()
	close(s.closeCh)

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close badger db: %w", err)
	}
	return nil
}

// badgerTxn adapts a badger transaction to the storage Txn surface. Reads
// inside an update see writes staged earlier in the same transaction.
type badgerTxn struct {
	txn *badgerv3.Txn
}

func (t *badgerTxn) Counter() (uint64, error) {
	item, err := t.txn.Get([]byte(keyCounter))
	if err != nil {
		if errors.Is(err, badgerv3.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get counter: %w", err)
	}

	var counter uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("malformed counter value: %d bytes", len(val))
		}
		counter = binary.BigEndian.Uint64(val)
		return nil
	})
	return counter, err
}

func (t *badgerTxn) SetCounter(value uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	return t.txn.Set([]byte(keyCounter), buf)
}

func (t *badgerTxn) GetAgent(owner common.Address) (*types.Agent, error) {
	key := fmt.Sprintf(prefixAgent, owner.Hex())

	var agent types.Agent
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badgerv3.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get agent: %w", err)
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &agent)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent: %w", err)
	}
	return &agent, nil
}

func (t *badgerTxn) PutAgent(agent *types.Agent) error {
	if agent == nil {
		return storage.ErrNilRecord
	}

	value, err := json.Marshal(agent)
	if err != nil {
		return fmt.Errorf("failed to marshal agent: %w", err)
	}

	key := fmt.Sprintf(prefixAgent, agent.Owner.Hex())
	return t.txn.Set([]byte(key), value)
}

func (t *badgerTxn) GetTask(id common.Hash) (*types.Task, error) {
	key := fmt.Sprintf(prefixTask, id.Hex())

	var task types.Task
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badgerv3.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &task)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (t *badgerTxn) PutTask(task *types.Task) error {
	if task == nil {
		return storage.ErrNilRecord
	}

	value, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	key := fmt.Sprintf(prefixTask, task.Id.Hex())
	return t.txn.Set([]byte(key), value)
}

func (t *badgerTxn) GetBalance(addr common.Address) (uint64, error) {
	key := fmt.Sprintf(prefixBalance, addr.Hex())

	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badgerv3.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	var balance uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("malformed balance value: %d bytes", len(val))
		}
		balance = binary.BigEndian.Uint64(val)
		return nil
	})
	return balance, err
}

func (t *badgerTxn) SetBalance(addr common.Address, amount uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, amount)

	key := fmt.Sprintf(prefixBalance, addr.Hex())
	return t.txn.Set([]byte(key), buf)
}
