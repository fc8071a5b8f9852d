package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeka-org/agent-forge/pkg/types"
)

// TestSuite defines compliance tests every ForgeStore backend must pass.
type TestSuite struct {
	NewStore func(t *testing.T) (ForgeStore, error)
}

// Run executes all storage interface compliance tests
func (s *TestSuite) Run(t *testing.T) {
	t.Run("Counter", s.testCounter)
	t.Run("Agents", s.testAgents)
	t.Run("Tasks", s.testTasks)
	t.Run("Balances", s.testBalances)
	t.Run("AtomicRollback", s.testAtomicRollback)
	t.Run("ReadYourWrites", s.testReadYourWrites)
	t.Run("Lifecycle", s.testLifecycle)
}

func (s *TestSuite) testCounter(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()

	err = store.View(ctx, func(txn ReadTxn) error {
		counter, err := txn.Counter()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), counter)
		return nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(txn Txn) error {
		return txn.SetCounter(7)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(txn ReadTxn) error {
		counter, err := txn.Counter()
		require.NoError(t, err)
		assert.Equal(t, uint64(7), counter)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testAgents(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")

	err = store.View(ctx, func(txn ReadTxn) error {
		_, err := txn.GetAgent(owner)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	agent := &types.Agent{
		Owner:           owner,
		Name:            "research-agent",
		Capabilities:    []string{"search", "summarize"},
		HourlyRate:      1_000_000,
		ReputationScore: 100,
		IsActive:        true,
		CreatedAt:       1700000000,
	}
	err = store.Update(ctx, func(txn Txn) error {
		return txn.PutAgent(agent)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(txn ReadTxn) error {
		got, err := txn.GetAgent(owner)
		require.NoError(t, err)
		assert.Equal(t, agent, got)
		return nil
	})
	require.NoError(t, err)

	// Overwrite updates in place.
	err = store.Update(ctx, func(txn Txn) error {
		updated := *agent
		updated.ReputationScore = 101
		updated.TasksCompleted = 1
		return txn.PutAgent(&updated)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(txn ReadTxn) error {
		got, err := txn.GetAgent(owner)
		require.NoError(t, err)
		assert.Equal(t, uint64(101), got.ReputationScore)
		assert.Equal(t, uint64(1), got.TasksCompleted)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testTasks(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	taskId := common.HexToHash("0xaa00000000000000000000000000000000000000000000000000000000000001")

	err = store.View(ctx, func(txn ReadTxn) error {
		_, err := txn.GetTask(taskId)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)

	task := &types.Task{
		Id:          taskId,
		Creator:     common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Description: "index the corpus",
		Budget:      500_000_000,
		Deadline:    1700086400,
		Status:      types.TaskStatusCreated,
		CreatedAt:   1700000000,
	}
	err = store.Update(ctx, func(txn Txn) error {
		return txn.PutTask(task)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(txn ReadTxn) error {
		got, err := txn.GetTask(taskId)
		require.NoError(t, err)
		assert.Equal(t, task, got)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testBalances(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	addr := common.HexToAddress("0x3333333333333333333333333333333333333333")

	// Unknown addresses hold zero, not ErrNotFound.
	err = store.View(ctx, func(txn ReadTxn) error {
		balance, err := txn.GetBalance(addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), balance)
		return nil
	})
	require.NoError(t, err)

	err = store.Update(ctx, func(txn Txn) error {
		return txn.SetBalance(addr, 1_000_000_000)
	})
	require.NoError(t, err)

	err = store.View(ctx, func(txn ReadTxn) error {
		balance, err := txn.GetBalance(addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(1_000_000_000), balance)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testAtomicRollback(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	addr := common.HexToAddress("0x4444444444444444444444444444444444444444")
	taskId := common.HexToHash("0xbb00000000000000000000000000000000000000000000000000000000000001")
	boom := errors.New("boom")

	err = store.Update(ctx, func(txn Txn) error {
		return txn.SetBalance(addr, 500)
	})
	require.NoError(t, err)

	// A failing closure must discard every staged write.
	err = store.Update(ctx, func(txn Txn) error {
		if err := txn.SetBalance(addr, 0); err != nil {
			return err
		}
		if err := txn.SetCounter(99); err != nil {
			return err
		}
		if err := txn.PutTask(&types.Task{Id: taskId}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	err = store.View(ctx, func(txn ReadTxn) error {
		balance, err := txn.GetBalance(addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(500), balance)

		counter, err := txn.Counter()
		require.NoError(t, err)
		assert.Equal(t, uint64(0), counter)

		_, err = txn.GetTask(taskId)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testReadYourWrites(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	addr := common.HexToAddress("0x5555555555555555555555555555555555555555")

	// Writes staged earlier in a closure are visible to later reads in the
	// same closure.
	err = store.Update(ctx, func(txn Txn) error {
		if err := txn.SetBalance(addr, 42); err != nil {
			return err
		}
		balance, err := txn.GetBalance(addr)
		require.NoError(t, err)
		assert.Equal(t, uint64(42), balance)

		if err := txn.SetCounter(3); err != nil {
			return err
		}
		counter, err := txn.Counter()
		require.NoError(t, err)
		assert.Equal(t, uint64(3), counter)
		return nil
	})
	require.NoError(t, err)
}

func (s *TestSuite) testLifecycle(t *testing.T) {
	store, err := s.NewStore(t)
	require.NoError(t, err)

	require.NoError(t, store.Close())

	ctx := context.Background()
	err = store.View(ctx, func(txn ReadTxn) error { return nil })
	assert.ErrorIs(t, err, ErrStoreClosed)

	err = store.Update(ctx, func(txn Txn) error { return nil })
	assert.ErrorIs(t, err, ErrStoreClosed)
}
