package marketplace

import (
	"context"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jeka-org/agent-forge/pkg/auth"
	"github.com/jeka-org/agent-forge/pkg/clock"
	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
	"github.com/jeka-org/agent-forge/pkg/marketplace/storage/memory"
	"github.com/jeka-org/agent-forge/pkg/signer/inMemorySigner"
	"github.com/jeka-org/agent-forge/pkg/taskid"
	"github.com/jeka-org/agent-forge/pkg/types"
	"github.com/jeka-org/agent-forge/pkg/util"
)

const testEpoch = int64(1_700_000_000)

type testIdentity struct {
	signer *inMemorySigner.InMemorySigner
}

func newIdentity(t *testing.T) *testIdentity {
	t.Helper()
	s, err := inMemorySigner.NewRandomSigner()
	require.NoError(t, err)
	return &testIdentity{signer: s}
}

func (ti *testIdentity) address() common.Address {
	return ti.signer.Address()
}

func (ti *testIdentity) actor(t *testing.T, opName string, payload []byte) auth.Actor {
	t.Helper()
	sig, err := auth.SignOperation(ti.signer, opName, payload)
	require.NoError(t, err)
	return auth.Actor{Address: ti.signer.Address(), Signature: sig}
}

type testEnv struct {
	m     *Marketplace
	clock *clock.ManualClock
	sink  *CaptureEventSink
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewInMemoryForgeStore()
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.NewManualClock(testEpoch)
	sink := NewCaptureEventSink()
	m := NewMarketplace(store, clk, sink, zap.NewNop())
	return &testEnv{m: m, clock: clk, sink: sink}
}

func (e *testEnv) fund(t *testing.T, addr common.Address, amount uint64) {
	t.Helper()
	err := e.m.ApplyGenesis(context.Background(), []marketplaceConfig.GenesisAllocation{
		{Address: addr.Hex(), Amount: amount},
	})
	require.NoError(t, err)
}

func (e *testEnv) registerAgent(t *testing.T, id *testIdentity) *types.Agent {
	t.Helper()
	params := RegisterAgentParams{Name: "agent", Capabilities: []string{"search"}, HourlyRate: 1000}
	payload := util.EncodeRegisterAgentMessage(id.address(), params.Name, params.Capabilities, params.HourlyRate)
	agent, err := e.m.RegisterAgent(context.Background(), id.actor(t, OpRegisterAgent, payload), params)
	require.NoError(t, err)
	return agent
}

func (e *testEnv) createTask(t *testing.T, creator *testIdentity, budget uint64, deadline int64) *types.Task {
	t.Helper()
	params := CreateTaskParams{Description: "do the work", Budget: budget, Deadline: deadline}
	payload := util.EncodeCreateTaskMessage(creator.address(), params.Description, params.Budget, params.Deadline)
	task, err := e.m.CreateTask(context.Background(), creator.actor(t, OpCreateTask, payload), params)
	require.NoError(t, err)
	return task
}

func (e *testEnv) acceptTask(t *testing.T, agent *testIdentity, taskId common.Hash) (*types.Task, error) {
	t.Helper()
	payload := util.EncodeTaskActionMessage(agent.address(), taskId)
	return e.m.AcceptTask(context.Background(), agent.actor(t, OpAcceptTask, payload), taskId)
}

func (e *testEnv) submitResult(t *testing.T, agent *testIdentity, taskId common.Hash, uri string) (*types.Task, error) {
	t.Helper()
	payload := util.EncodeSubmitResultMessage(agent.address(), taskId, uri)
	return e.m.SubmitResult(context.Background(), agent.actor(t, OpSubmitResult, payload), SubmitResultParams{TaskId: taskId, ResultURI: uri})
}

func (e *testEnv) approveResult(t *testing.T, creator *testIdentity, taskId common.Hash) (*types.Task, error) {
	t.Helper()
	payload := util.EncodeTaskActionMessage(creator.address(), taskId)
	return e.m.ApproveResult(context.Background(), creator.actor(t, OpApproveResult, payload), taskId)
}

func (e *testEnv) expireTask(t *testing.T, caller *testIdentity, taskId common.Hash) (*types.Task, error) {
	t.Helper()
	payload := util.EncodeTaskActionMessage(caller.address(), taskId)
	return e.m.ExpireTask(context.Background(), caller.actor(t, OpExpireTask, payload), taskId)
}

func TestRegisterAgent(t *testing.T) {
	env := newTestEnv(t)
	id := newIdentity(t)

	agent := env.registerAgent(t, id)
	assert.Equal(t, id.address(), agent.Owner)
	assert.Equal(t, uint64(100), agent.ReputationScore)
	assert.True(t, agent.IsActive)
	assert.Equal(t, uint64(0), agent.TasksCompleted)
	assert.Equal(t, testEpoch, agent.CreatedAt)

	fetched, err := env.m.GetAgent(context.Background(), id.address())
	require.NoError(t, err)
	assert.Equal(t, agent, fetched)
}

func TestRegisterAgent_AlreadyRegistered(t *testing.T) {
	env := newTestEnv(t)
	id := newIdentity(t)
	env.registerAgent(t, id)

	params := RegisterAgentParams{Name: "again"}
	payload := util.EncodeRegisterAgentMessage(id.address(), params.Name, nil, 0)
	_, err := env.m.RegisterAgent(context.Background(), id.actor(t, OpRegisterAgent, payload), params)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	assert.True(t, IsStateError(err))
}

func TestRegisterAgent_InputBounds(t *testing.T) {
	env := newTestEnv(t)

	longName := make([]byte, 33)
	for i := range longName {
		longName[i] = 'a'
	}

	tests := []struct {
		name    string
		params  RegisterAgentParams
		wantErr error
	}{
		{
			name:    "name too long",
			params:  RegisterAgentParams{Name: string(longName)},
			wantErr: ErrNameTooLong,
		},
		{
			name: "too many capabilities",
			params: RegisterAgentParams{Name: "a", Capabilities: []string{
				"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11",
			}},
			wantErr: ErrTooManyCaps,
		},
		{
			name:    "capability too long",
			params:  RegisterAgentParams{Name: "a", Capabilities: []string{string(longName)}},
			wantErr: ErrCapabilityTooLong,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := newIdentity(t)
			payload := util.EncodeRegisterAgentMessage(id.address(), tt.params.Name, tt.params.Capabilities, tt.params.HourlyRate)
			_, err := env.m.RegisterAgent(context.Background(), id.actor(t, OpRegisterAgent, payload), tt.params)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestRegisterAgent_ForgedSignature(t *testing.T) {
	env := newTestEnv(t)
	id := newIdentity(t)
	impostor := newIdentity(t)

	params := RegisterAgentParams{Name: "agent"}
	payload := util.EncodeRegisterAgentMessage(id.address(), params.Name, nil, 0)

	// The impostor signs but claims the victim's identity.
	actor := impostor.actor(t, OpRegisterAgent, payload)
	actor.Address = id.address()

	_, err := env.m.RegisterAgent(context.Background(), actor, params)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.True(t, IsAuthorization(err))
}

func TestSetAgentActive(t *testing.T) {
	env := newTestEnv(t)
	id := newIdentity(t)
	env.registerAgent(t, id)

	payload := util.EncodeSetAgentActiveMessage(id.address(), false)
	agent, err := env.m.SetAgentActive(context.Background(), id.actor(t, OpSetAgentActive, payload), false)
	require.NoError(t, err)
	assert.False(t, agent.IsActive)

	payload = util.EncodeSetAgentActiveMessage(id.address(), true)
	agent, err = env.m.SetAgentActive(context.Background(), id.actor(t, OpSetAgentActive, payload), true)
	require.NoError(t, err)
	assert.True(t, agent.IsActive)
}

func TestSetAgentActive_NotRegistered(t *testing.T) {
	env := newTestEnv(t)
	id := newIdentity(t)

	payload := util.EncodeSetAgentActiveMessage(id.address(), false)
	_, err := env.m.SetAgentActive(context.Background(), id.actor(t, OpSetAgentActive, payload), false)
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.True(t, IsNotFound(err))
}

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)

	counterBefore, err := env.m.Counter(context.Background())
	require.NoError(t, err)

	task := env.createTask(t, creator, 600_000, testEpoch+3600)
	assert.Equal(t, types.TaskStatusCreated, task.Status)
	assert.Equal(t, creator.address(), task.Creator)
	assert.Equal(t, common.Address{}, task.AssignedAgent)
	assert.Equal(t, taskid.DeriveTaskId(creator.address(), counterBefore), task.Id)

	// Escrow deducted exactly once.
	balance, err := env.m.GetBalance(context.Background(), creator.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(400_000), balance)

	counterAfter, err := env.m.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, counterBefore+1, counterAfter)
}

func TestCreateTask_Validation(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)

	submit := func(params CreateTaskParams) error {
		payload := util.EncodeCreateTaskMessage(creator.address(), params.Description, params.Budget, params.Deadline)
		_, err := env.m.CreateTask(context.Background(), creator.actor(t, OpCreateTask, payload), params)
		return err
	}

	err := submit(CreateTaskParams{Description: "x", Budget: 0, Deadline: testEpoch + 3600})
	assert.ErrorIs(t, err, ErrInvalidBudget)
	assert.True(t, IsValidation(err))

	err = submit(CreateTaskParams{Description: "x", Budget: 100, Deadline: testEpoch})
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	err = submit(CreateTaskParams{Description: "x", Budget: 100, Deadline: testEpoch - 1})
	assert.ErrorIs(t, err, ErrInvalidDeadline)

	longDescription := make([]byte, 257)
	err = submit(CreateTaskParams{Description: string(longDescription), Budget: 100, Deadline: testEpoch + 3600})
	assert.ErrorIs(t, err, ErrDescriptionTooLong)
}

func TestCreateTask_InsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	env.fund(t, creator.address(), 99)

	params := CreateTaskParams{Description: "x", Budget: 100, Deadline: testEpoch + 3600}
	payload := util.EncodeCreateTaskMessage(creator.address(), params.Description, params.Budget, params.Deadline)
	_, err := env.m.CreateTask(context.Background(), creator.actor(t, OpCreateTask, payload), params)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, IsResourceError(err))

	// The failed attempt left no trace: balance intact, counter unchanged.
	balance, err := env.m.GetBalance(context.Background(), creator.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), balance)

	counter, err := env.m.Counter(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), counter)
}

func TestAcceptTask(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)

	accepted, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusAccepted, accepted.Status)
	assert.Equal(t, agent.address(), accepted.AssignedAgent)
}

func TestAcceptTask_Failures(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	unregistered := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)

	t.Run("task not found", func(t *testing.T) {
		_, err := env.acceptTask(t, agent, common.HexToHash("0x01"))
		assert.ErrorIs(t, err, ErrTaskNotFound)
	})

	t.Run("agent not registered", func(t *testing.T) {
		_, err := env.acceptTask(t, unregistered, task.Id)
		assert.ErrorIs(t, err, ErrAgentNotFound)
	})

	t.Run("agent inactive", func(t *testing.T) {
		inactive := newIdentity(t)
		env.registerAgent(t, inactive)
		payload := util.EncodeSetAgentActiveMessage(inactive.address(), false)
		_, err := env.m.SetAgentActive(context.Background(), inactive.actor(t, OpSetAgentActive, payload), false)
		require.NoError(t, err)

		_, err = env.acceptTask(t, inactive, task.Id)
		assert.ErrorIs(t, err, ErrAgentInactive)
	})

	t.Run("deadline passed", func(t *testing.T) {
		expired := env.createTask(t, creator, 500, testEpoch+10)
		env.clock.Advance(10)
		_, err := env.acceptTask(t, agent, expired.Id)
		assert.ErrorIs(t, err, ErrTaskExpired)
	})

	t.Run("second accept loses", func(t *testing.T) {
		second := newIdentity(t)
		env.registerAgent(t, second)

		_, err := env.acceptTask(t, agent, task.Id)
		require.NoError(t, err)

		_, err = env.acceptTask(t, second, task.Id)
		assert.ErrorIs(t, err, ErrInvalidState)
		assert.True(t, IsStateError(err))

		// The winner's assignment is untouched.
		got, err := env.m.GetTask(context.Background(), task.Id)
		require.NoError(t, err)
		assert.Equal(t, agent.address(), got.AssignedAgent)
	})
}

func TestAcceptTask_RacingAccepts(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)

	task := env.createTask(t, creator, 500, testEpoch+3600)

	const racers = 8
	agents := make([]*testIdentity, racers)
	for i := range agents {
		agents[i] = newIdentity(t)
		env.registerAgent(t, agents[i])
	}

	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := util.EncodeTaskActionMessage(agents[i].address(), task.Id)
			sig, err := auth.SignOperation(agents[i].signer, OpAcceptTask, payload)
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = env.m.AcceptTask(context.Background(), auth.Actor{Address: agents[i].address(), Signature: sig}, task.Id)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else {
			assert.ErrorIs(t, err, ErrInvalidState)
		}
	}
	assert.Equal(t, 1, winners)
}

func TestSubmitResult(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)

	submitted, err := env.submitResult(t, agent, task.Id, "ipfs://QmResult")
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusSubmitted, submitted.Status)
	assert.Equal(t, "ipfs://QmResult", submitted.ResultURI)
}

func TestSubmitResult_UnauthorizedRegardlessOfStatus(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	outsider := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)
	env.registerAgent(t, outsider)

	// Created: no assigned agent yet, so any submitter is unauthorized.
	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.submitResult(t, outsider, task.Id, "ipfs://x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Accepted by someone else: still unauthorized.
	_, err = env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, outsider, task.Id, "ipfs://x")
	assert.ErrorIs(t, err, ErrUnauthorized)

	// Even the creator cannot submit.
	_, err = env.submitResult(t, creator, task.Id, "ipfs://x")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestSubmitResult_OneShot(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, agent, task.Id, "ipfs://first")
	require.NoError(t, err)

	_, err = env.submitResult(t, agent, task.Id, "ipfs://second")
	assert.ErrorIs(t, err, ErrInvalidState)

	got, err := env.m.GetTask(context.Background(), task.Id)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://first", got.ResultURI)
}

func TestSubmitResult_URIValidation(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)

	_, err = env.submitResult(t, agent, task.Id, "")
	assert.ErrorIs(t, err, ErrEmptyResultURI)

	longURI := make([]byte, 257)
	for i := range longURI {
		longURI[i] = 'u'
	}
	_, err = env.submitResult(t, agent, task.Id, string(longURI))
	assert.ErrorIs(t, err, ErrResultURITooLong)
}

func TestApproveResult(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, agent, task.Id, "ipfs://x")
	require.NoError(t, err)

	approved, err := env.approveResult(t, creator, task.Id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusApproved, approved.Status)

	agentBalance, err := env.m.GetBalance(context.Background(), agent.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), agentBalance)

	record, err := env.m.GetAgent(context.Background(), agent.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(101), record.ReputationScore)
	assert.Equal(t, uint64(1), record.TasksCompleted)
	assert.Equal(t, uint64(500), record.TotalEarned)
}

func TestApproveResult_Failures(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	outsider := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)

	// Not yet submitted.
	_, err := env.approveResult(t, creator, task.Id)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, agent, task.Id, "ipfs://x")
	require.NoError(t, err)

	// Only the creator approves; neither the agent nor a third party can.
	_, err = env.approveResult(t, agent, task.Id)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = env.approveResult(t, outsider, task.Id)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = env.approveResult(t, creator, common.HexToHash("0x02"))
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestApproveResult_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	env.fund(t, creator.address(), 1_000_000)
	env.registerAgent(t, agent)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agent, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, agent, task.Id, "ipfs://x")
	require.NoError(t, err)
	_, err = env.approveResult(t, creator, task.Id)
	require.NoError(t, err)

	_, err = env.approveResult(t, creator, task.Id)
	assert.ErrorIs(t, err, ErrInvalidState)

	// Funds and reputation are untouched by the failed retry.
	agentBalance, err := env.m.GetBalance(context.Background(), agent.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), agentBalance)

	record, err := env.m.GetAgent(context.Background(), agent.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(101), record.ReputationScore)
}

func TestExpireTask(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agent := newIdentity(t)
	outsider := newIdentity(t)
	env.fund(t, creator.address(), 1_000)
	env.registerAgent(t, agent)

	t.Run("deadline not reached", func(t *testing.T) {
		task := env.createTask(t, creator, 100, env.clock.Now()+3600)
		_, err := env.expireTask(t, creator, task.Id)
		assert.ErrorIs(t, err, ErrDeadlineNotReached)
	})

	t.Run("created task refunds creator, any caller may trigger", func(t *testing.T) {
		before, err := env.m.GetBalance(context.Background(), creator.address())
		require.NoError(t, err)

		task := env.createTask(t, creator, 100, env.clock.Now()+10)
		env.clock.Advance(10)

		expired, err := env.expireTask(t, outsider, task.Id)
		require.NoError(t, err)
		assert.Equal(t, types.TaskStatusExpired, expired.Status)

		after, err := env.m.GetBalance(context.Background(), creator.address())
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("accepted task also refunds creator", func(t *testing.T) {
		before, err := env.m.GetBalance(context.Background(), creator.address())
		require.NoError(t, err)

		task := env.createTask(t, creator, 100, env.clock.Now()+10)
		_, err = env.acceptTask(t, agent, task.Id)
		require.NoError(t, err)
		env.clock.Advance(10)

		_, err = env.expireTask(t, creator, task.Id)
		require.NoError(t, err)

		after, err := env.m.GetBalance(context.Background(), creator.address())
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})

	t.Run("submitted task is never expirable", func(t *testing.T) {
		task := env.createTask(t, creator, 100, env.clock.Now()+10)
		_, err := env.acceptTask(t, agent, task.Id)
		require.NoError(t, err)
		_, err = env.submitResult(t, agent, task.Id, "ipfs://x")
		require.NoError(t, err)

		env.clock.Advance(1000)
		_, err = env.expireTask(t, creator, task.Id)
		assert.ErrorIs(t, err, ErrInvalidState)

		// The approval path stays open.
		_, err = env.approveResult(t, creator, task.Id)
		require.NoError(t, err)
	})

	t.Run("expired task is terminal", func(t *testing.T) {
		task := env.createTask(t, creator, 100, env.clock.Now()+10)
		env.clock.Advance(10)
		_, err := env.expireTask(t, creator, task.Id)
		require.NoError(t, err)

		_, err = env.expireTask(t, creator, task.Id)
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = env.acceptTask(t, agent, task.Id)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestEndToEnd_HappyPath(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agentId := newIdentity(t)
	env.fund(t, creator.address(), 600_000_000)

	agent := env.registerAgent(t, agentId)
	assert.Equal(t, uint64(100), agent.ReputationScore)

	task := env.createTask(t, creator, 500_000_000, testEpoch+86400)

	_, err := env.acceptTask(t, agentId, task.Id)
	require.NoError(t, err)

	_, err = env.submitResult(t, agentId, task.Id, "ipfs://X")
	require.NoError(t, err)

	_, err = env.approveResult(t, creator, task.Id)
	require.NoError(t, err)

	final, err := env.m.GetTask(context.Background(), task.Id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusApproved, final.Status)
	assert.Equal(t, "ipfs://X", final.ResultURI)

	agentBalance, err := env.m.GetBalance(context.Background(), agentId.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), agentBalance)

	record, err := env.m.GetAgent(context.Background(), agentId.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(101), record.ReputationScore)

	creatorBalance, err := env.m.GetBalance(context.Background(), creator.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), creatorBalance)
}

func TestEndToEnd_ExpiryPath(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agentId := newIdentity(t)
	env.fund(t, creator.address(), 500_000_000)
	env.registerAgent(t, agentId)

	task := env.createTask(t, creator, 500_000_000, testEpoch+86400)

	balance, err := env.m.GetBalance(context.Background(), creator.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), balance)

	env.clock.Advance(86400)

	_, err = env.expireTask(t, creator, task.Id)
	require.NoError(t, err)

	balance, err = env.m.GetBalance(context.Background(), creator.address())
	require.NoError(t, err)
	assert.Equal(t, uint64(500_000_000), balance)

	final, err := env.m.GetTask(context.Background(), task.Id)
	require.NoError(t, err)
	assert.Equal(t, types.TaskStatusExpired, final.Status)

	_, err = env.acceptTask(t, agentId, task.Id)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestEvents(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agentId := newIdentity(t)
	env.fund(t, creator.address(), 1_000)
	env.registerAgent(t, agentId)

	task := env.createTask(t, creator, 500, testEpoch+3600)
	_, err := env.acceptTask(t, agentId, task.Id)
	require.NoError(t, err)
	_, err = env.submitResult(t, agentId, task.Id, "ipfs://x")
	require.NoError(t, err)
	_, err = env.approveResult(t, creator, task.Id)
	require.NoError(t, err)

	var names []string
	for _, event := range env.sink.Events() {
		names = append(names, event.EventName())
	}
	assert.Equal(t, []string{
		"AgentRegistered",
		"TaskCreated",
		"TaskAccepted",
		"ResultSubmitted",
		"TaskApproved",
	}, names)
}

func TestSignatureNotReusableAcrossOperations(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agentId := newIdentity(t)
	env.fund(t, creator.address(), 1_000)
	env.registerAgent(t, agentId)

	task := env.createTask(t, creator, 500, testEpoch+3600)

	// A valid accept signature must not authorize an approve.
	payload := util.EncodeTaskActionMessage(agentId.address(), task.Id)
	sig, err := auth.SignOperation(agentId.signer, OpAcceptTask, payload)
	require.NoError(t, err)

	_, err = env.m.ApproveResult(context.Background(), auth.Actor{Address: agentId.address(), Signature: sig}, task.Id)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestReputationOnlyIncreases(t *testing.T) {
	env := newTestEnv(t)
	creator := newIdentity(t)
	agentId := newIdentity(t)
	env.fund(t, creator.address(), 10_000)
	env.registerAgent(t, agentId)

	last := uint64(100)
	for i := 0; i < 3; i++ {
		task := env.createTask(t, creator, 1_000, env.clock.Now()+3600)
		_, err := env.acceptTask(t, agentId, task.Id)
		require.NoError(t, err)
		_, err = env.submitResult(t, agentId, task.Id, "ipfs://x")
		require.NoError(t, err)
		_, err = env.approveResult(t, creator, task.Id)
		require.NoError(t, err)

		record, err := env.m.GetAgent(context.Background(), agentId.address())
		require.NoError(t, err)
		assert.Equal(t, last+1, record.ReputationScore)
		last = record.ReputationScore
	}
}
