package apiServer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/jeka-org/agent-forge/pkg/auth"
	"github.com/jeka-org/agent-forge/pkg/marketplace"
	"github.com/jeka-org/agent-forge/pkg/marketplace/marketplaceConfig"
	"github.com/jeka-org/agent-forge/pkg/types"
)

// ApiServer exposes the marketplace operations and read accessors over
// JSON/HTTP. Mutating requests carry the actor's address and a recoverable
// signature produced client-side; the server never holds keys and never
// signs.
type ApiServer struct {
	marketplace *marketplace.Marketplace
	config      *marketplaceConfig.ServerConfig
	logger      *zap.Logger
	server      *http.Server
}

func NewApiServer(cfg *marketplaceConfig.ServerConfig, m *marketplace.Marketplace, logger *zap.Logger) *ApiServer {
	s := &ApiServer{
		marketplace: m,
		config:      cfg,
		logger:      logger,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler builds the routed handler. Exposed separately so tests can drive
// it through httptest.
func (s *ApiServer) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/v1/counter", s.withRequestId(s.handleGetCounter))
	router.GET("/v1/agents/:owner", s.withRequestId(s.handleGetAgent))
	router.GET("/v1/tasks/:id", s.withRequestId(s.handleGetTask))
	router.GET("/v1/balances/:address", s.withRequestId(s.handleGetBalance))

	router.POST("/v1/agents", s.withRequestId(s.handleRegisterAgent))
	router.POST("/v1/agents/status", s.withRequestId(s.handleSetAgentActive))
	router.POST("/v1/tasks", s.withRequestId(s.handleCreateTask))
	router.POST("/v1/tasks/:id/accept", s.withRequestId(s.handleAcceptTask))
	router.POST("/v1/tasks/:id/result", s.withRequestId(s.handleSubmitResult))
	router.POST("/v1/tasks/:id/approve", s.withRequestId(s.handleApproveResult))
	router.POST("/v1/tasks/:id/expire", s.withRequestId(s.handleExpireTask))

	return cors.Default().Handler(router)
}

// Start serves until the context is canceled.
func (s *ApiServer) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infow("API server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

type actorPayload struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

func (p *actorPayload) toActor() (auth.Actor, error) {
	if !common.IsHexAddress(p.Address) {
		return auth.Actor{}, fmt.Errorf("invalid actor address %q", p.Address)
	}
	sig, err := hexutil.Decode(p.Signature)
	if err != nil {
		return auth.Actor{}, fmt.Errorf("invalid actor signature: %w", err)
	}
	return auth.Actor{Address: common.HexToAddress(p.Address), Signature: sig}, nil
}

type registerAgentRequest struct {
	Actor        actorPayload `json:"actor"`
	Name         string       `json:"name"`
	Capabilities []string     `json:"capabilities,omitempty"`
	HourlyRate   int64        `json:"hourlyRate"`
}

type setAgentActiveRequest struct {
	Actor  actorPayload `json:"actor"`
	Active bool         `json:"active"`
}

type createTaskRequest struct {
	Actor       actorPayload `json:"actor"`
	Description string       `json:"description"`
	Budget      uint64       `json:"budget"`
	Deadline    int64        `json:"deadline"`
}

type taskActionRequest struct {
	Actor actorPayload `json:"actor"`
}

type submitResultRequest struct {
	Actor     actorPayload `json:"actor"`
	ResultURI string       `json:"resultUri"`
}

type counterResponse struct {
	Counter uint64 `json:"counter"`
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *ApiServer) handleGetCounter(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	counter, err := s.marketplace.Counter(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, counterResponse{Counter: counter})
}

func (s *ApiServer) handleGetAgent(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	owner := params.ByName("owner")
	if !common.IsHexAddress(owner) {
		s.writeBadRequest(w, r, fmt.Errorf("invalid owner address %q", owner))
		return
	}
	agent, err := s.marketplace.GetAgent(r.Context(), common.HexToAddress(owner))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

func (s *ApiServer) handleGetTask(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	taskId, err := parseTaskId(params.ByName("id"))
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	task, err := s.marketplace.GetTask(r.Context(), taskId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *ApiServer) handleGetBalance(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	address := params.ByName("address")
	if !common.IsHexAddress(address) {
		s.writeBadRequest(w, r, fmt.Errorf("invalid address %q", address))
		return
	}
	addr := common.HexToAddress(address)
	balance, err := s.marketplace.GetBalance(r.Context(), addr)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balanceResponse{Address: addr.Hex(), Balance: balance})
}

func (s *ApiServer) handleRegisterAgent(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	if req.HourlyRate < 0 {
		s.writeError(w, r, marketplace.ErrInvalidRate)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	agent, err := s.marketplace.RegisterAgent(r.Context(), actor, marketplace.RegisterAgentParams{
		Name:         req.Name,
		Capabilities: req.Capabilities,
		HourlyRate:   uint64(req.HourlyRate),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, agent)
}

func (s *ApiServer) handleSetAgentActive(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req setAgentActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	agent, err := s.marketplace.SetAgentActive(r.Context(), actor, req.Active)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

func (s *ApiServer) handleCreateTask(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	task, err := s.marketplace.CreateTask(r.Context(), actor, marketplace.CreateTaskParams{
		Description: req.Description,
		Budget:      req.Budget,
		Deadline:    req.Deadline,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, task)
}

func (s *ApiServer) handleAcceptTask(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.handleTaskAction(w, r, params, s.marketplace.AcceptTask)
}

func (s *ApiServer) handleApproveResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.handleTaskAction(w, r, params, s.marketplace.ApproveResult)
}

func (s *ApiServer) handleExpireTask(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.handleTaskAction(w, r, params, s.marketplace.ExpireTask)
}

func (s *ApiServer) handleTaskAction(
	w http.ResponseWriter,
	r *http.Request,
	params httprouter.Params,
	action func(ctx context.Context, actor auth.Actor, taskId common.Hash) (*types.Task, error),
) {
	taskId, err := parseTaskId(params.ByName("id"))
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	var req taskActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	task, err := action(r.Context(), actor, taskId)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

func (s *ApiServer) handleSubmitResult(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	taskId, err := parseTaskId(params.ByName("id"))
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	var req submitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeBadRequest(w, r, err)
		return
	}
	actor, err := req.Actor.toActor()
	if err != nil {
		s.writeBadRequest(w, r, err)
		return
	}

	task, err := s.marketplace.SubmitResult(r.Context(), actor, marketplace.SubmitResultParams{
		TaskId:    taskId,
		ResultURI: req.ResultURI,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

// withRequestId tags every request with a correlation id and logs the call.
func (s *ApiServer) withRequestId(next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		requestId := uuid.New().String()
		w.Header().Set("X-Request-Id", requestId)
		s.logger.Sugar().Debugw("handling request",
			"requestId", requestId,
			"method", r.Method,
			"path", r.URL.Path,
		)
		next(w, r, params)
	}
}

func (s *ApiServer) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Sugar().Errorw("failed to encode response", "error", err)
	}
}

func (s *ApiServer) writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
}

func (s *ApiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind, status := classify(err)
	s.logger.Sugar().Debugw("operation rejected",
		"method", r.Method,
		"path", r.URL.Path,
		"kind", kind,
		"error", err,
	)
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func classify(err error) (string, int) {
	switch {
	case marketplace.IsValidation(err):
		return "validation", http.StatusBadRequest
	case marketplace.IsAuthorization(err):
		return "authorization", http.StatusForbidden
	case marketplace.IsNotFound(err):
		return "not_found", http.StatusNotFound
	case marketplace.IsStateError(err):
		return "state", http.StatusConflict
	case marketplace.IsResourceError(err):
		return "resource", http.StatusPaymentRequired
	default:
		return "internal", http.StatusInternalServerError
	}
}

func parseTaskId(raw string) (common.Hash, error) {
	decoded, err := hexutil.Decode(raw)
	if err != nil {
		return common.Hash{}, fmt.Errorf("invalid task id %q: %w", raw, err)
	}
	if len(decoded) != common.HashLength {
		return common.Hash{}, fmt.Errorf("task id must be %d bytes, got %d", common.HashLength, len(decoded))
	}
	return common.BytesToHash(decoded), nil
}
