package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/copyleftdev/gdopt/internal/config"
	apperrors "github.com/copyleftdev/gdopt/internal/errors"
	"github.com/copyleftdev/gdopt/internal/logging"
	"github.com/copyleftdev/gdopt/internal/metrics"
	"github.com/copyleftdev/gdopt/internal/optimization"
	"github.com/copyleftdev/gdopt/internal/optimization/descent"
	"github.com/copyleftdev/gdopt/internal/optimization/objectives"
	"github.com/copyleftdev/gdopt/internal/progress"
)

// Job statuses
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// JSON-RPC 2.0 error codes
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

// Logger defines the logging interface used by the server
// This allows us to be flexible with our logging implementation
type Logger interface {
	Debug(msg string, fields ...map[string]interface{})
	Info(msg string, fields ...map[string]interface{})
	Warn(msg string, fields ...map[string]interface{})
	Error(msg string, fields ...map[string]interface{})
	Fatal(msg string, fields ...map[string]interface{})
	WithFields(fields map[string]interface{}) *logging.Logger
}

// StartRequest describes a gradient descent job.
type StartRequest struct {
	// Objective is a registered objective name, see objectives.Names
	Objective string `json:"objective"`
	// Data holds the matrix and target of least_squares
	Data *struct {
		A [][]float64 `json:"a"`
		B []float64   `json:"b"`
	} `json:"data,omitempty"`
	// X0 is the starting candidate
	X0 []float64 `json:"x0"`
	// Shape is passed through to progress reporting; defaults to [len(x0)]
	Shape []int `json:"shape,omitempty"`
	// LearningRate and Iterations fall back to the configured defaults
	LearningRate *float64 `json:"learning_rate,omitempty"`
	Iterations   *int     `json:"iterations,omitempty"`
}

// JobState represents the state of an optimization job.
// Fields are guarded by Server.jobsMu.
type JobState struct {
	ID           string
	Status       string
	Objective    string
	Optimizer    string
	LearningRate float64
	Shape        []int
	Iterations   int
	Completed    int
	X            []float64
	Losses       []float64
	Err          string
	StartTime    time.Time
	EndTime      *time.Time
	LastUpdated  time.Time
	CancelFunc   context.CancelFunc
}

// Server implements the HTTP and JSON-RPC server for the optimization service.
// It manages gradient descent jobs and provides endpoints to start, monitor, and cancel them.
type Server struct {
	cfg     *config.Config
	logger  Logger
	metrics *metrics.Collector

	// Limits the number of jobs running at once
	slots chan struct{}
	wg    sync.WaitGroup

	jobs   map[string]*JobState
	jobsMu sync.RWMutex // Protects jobs and every JobState
}

// NewServer creates a new server instance with the given config and logger
// The logger parameter accepts any type that implements the Logger interface
func NewServer(cfg *config.Config, logger Logger, collector *metrics.Collector) *Server {
	if collector == nil {
		collector = metrics.NewCollector(nil)
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		metrics: collector,
		slots:   make(chan struct{}, max(cfg.Optimization.MaxJobs, 1)),
		jobs:    make(map[string]*JobState),
	}
}

func (s *Server) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/optimize", s.handleOptimize)
		r.Get("/status/{id}", s.handleStatus)
		r.Delete("/optimization/{id}", s.handleCancel)
		r.Get("/objectives", s.handleObjectives)
	})

	// JSON-RPC 2.0 endpoint
	r.Post("/rpc", s.handleJSONRPC)
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// paramsError marks errors caused by the caller's parameters
type paramsError struct{ error }

func (e paramsError) Unwrap() error { return e.error }

func invalidParams(format string, args ...interface{}) error {
	return paramsError{fmt.Errorf(format, args...)}
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil, "")
		return
	}

	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID, "")
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		var req StartRequest
		if err = decodeParams(request.Params, &req); err == nil {
			result, err = s.startJob(r.Context(), req)
		}
	case "optimization.status":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			result, err = s.jobStatus(p.ID)
		}
	case "optimization.cancel":
		var p idParams
		if err = decodeParams(request.Params, &p); err == nil {
			err = s.cancelJob(p.ID)
			result = map[string]string{"status": "cancellation requested"}
		}
	case "optimization.objectives":
		result = objectiveList()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID, "")
		return
	}

	if err != nil {
		var pe paramsError
		if apperrors.As(err, &pe) {
			s.respondWithError(w, codeInvalidParams, "Invalid params", request.ID, err.Error())
			return
		}
		s.respondWithError(w, codeServerError, "Server error", request.ID, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

type idParams struct {
	ID string `json:"optimization_id"`
}

// decodeParams decodes the first positional parameter into v
func decodeParams(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return invalidParams("missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return invalidParams("invalid parameter format: %v", err)
	}
	return nil
}

// startJob validates req, registers a pending job and starts it in a goroutine.
// Returns: {"optimization_id": "...", "status": "pending"}
func (s *Server) startJob(ctx context.Context, req StartRequest) (map[string]interface{}, error) {
	if len(req.X0) == 0 {
		return nil, invalidParams("x0 is required")
	}

	spec := objectives.Spec{Name: req.Objective}
	if req.Data != nil {
		spec.A, spec.B = req.Data.A, req.Data.B
	}
	lossGrads, err := objectives.Build(spec, len(req.X0))
	if err != nil {
		return nil, paramsError{err}
	}

	lr := s.cfg.Optimization.LearningRate
	if req.LearningRate != nil {
		lr = *req.LearningRate
	}
	iterations := s.cfg.Optimization.Iterations
	if req.Iterations != nil {
		iterations = *req.Iterations
	}
	if iterations < 0 || iterations > s.cfg.Optimization.MaxIterations {
		return nil, invalidParams("iterations must be between 0 and %d, got %d", s.cfg.Optimization.MaxIterations, iterations)
	}

	shape := req.Shape
	if len(shape) == 0 {
		shape = []int{len(req.X0)}
	}

	id := uuid.New().String()
	jobLogger := s.logger.WithFields(map[string]interface{}{"optimization_id": id})

	state := &JobState{
		ID:         id,
		Status:     StatusPending,
		Objective:  req.Objective,
		Shape:      shape,
		Iterations: iterations,
		X:          append([]float64(nil), req.X0...),
		Losses:     make([]float64, 0, min(iterations, s.historyCap())),
	}

	everyN := iterations / 10
	gd, err := descent.NewValidated(lr, descent.WithProgress(progress.Multi{
		&jobReporter{s: s, state: state},
		s.metrics.Reporter(id),
		progress.NewLogReporter(logging.NewZapLogger(jobLogger), everyN),
	}))
	if err != nil {
		return nil, paramsError{err}
	}
	state.Optimizer = gd.String()
	state.LearningRate = gd.LearningRate()

	// Jobs outlive the request that started them
	jobCtx, cancel := context.WithCancel(logging.NewContext(context.WithoutCancel(ctx), jobLogger))
	now := time.Now()
	state.StartTime = now
	state.LastUpdated = now
	state.CancelFunc = cancel

	s.jobsMu.Lock()
	s.sweepLocked(now)
	s.jobs[id] = state
	s.jobsMu.Unlock()

	s.wg.Add(1)
	go s.runJob(jobCtx, state, gd, lossGrads, append([]float64(nil), req.X0...))

	jobLogger.Info("Optimization queued", map[string]interface{}{
		"objective":  req.Objective,
		"optimizer":  state.Optimizer,
		"iterations": iterations,
		"dimension":  len(req.X0),
	})

	return map[string]interface{}{
		"optimization_id": id,
		"status":          StatusPending,
	}, nil
}

// sweepLocked forgets terminal jobs that ended more than the configured
// retention before now. Callers hold jobsMu.
func (s *Server) sweepLocked(now time.Time) int {
	retention := s.cfg.Optimization.JobRetention
	if retention <= 0 {
		return 0
	}

	removed := 0
	for id, job := range s.jobs {
		if job.EndTime == nil || now.Sub(*job.EndTime) < retention {
			continue
		}
		switch job.Status {
		case StatusCompleted, StatusFailed, StatusCancelled:
			delete(s.jobs, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Debug("Expired finished optimizations", map[string]interface{}{
			"removed":   removed,
			"remaining": len(s.jobs),
		})
	}
	return removed
}

// historyCap bounds the preallocated loss buffer of a job
func (s *Server) historyCap() int {
	if s.cfg.Optimization.HistoryLimit > 0 {
		return s.cfg.Optimization.HistoryLimit
	}
	return 1024
}

// runJob waits for a free slot, then runs the optimizer to completion
func (s *Server) runJob(ctx context.Context, state *JobState, gd *descent.GradientDescent, lossGrads optimization.LossGradsFunc, x []float64) {
	defer s.wg.Done()
	logger := logging.FromContext(ctx)

	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-ctx.Done():
		s.abandonJob(state, ctx.Err())
		return
	}

	s.jobsMu.Lock()
	if state.Status != StatusPending {
		s.jobsMu.Unlock()
		s.abandonJob(state, ctx.Err())
		return
	}
	state.Status = StatusRunning
	state.LastUpdated = time.Now()
	s.jobsMu.Unlock()

	_, err := gd.Run(ctx, x, state.Shape, lossGrads, state.Iterations, func(cur []float64, _ int) error {
		s.jobsMu.Lock()
		copy(state.X, cur)
		s.jobsMu.Unlock()
		return nil
	})

	if err != nil && metrics.StatusFor(err) == metrics.StatusFailed {
		err = apperrors.Wrapf(err, "optimization %s stopped after %d iterations", state.ID, len(gd.LossHistory())).
			WithOperation("run").
			WithComponent("server")
		logger.Error("Optimization failed", map[string]interface{}{"error": err.Error()})
	}
	s.finishJob(state, err)
}

// abandonJob ends a job that never reached its first step
func (s *Server) abandonJob(state *JobState, err error) {
	s.metrics.RecordUnstarted(err)
	s.finishJob(state, err)
}

// finishJob moves a job to its terminal status unless it was cancelled already
func (s *Server) finishJob(state *JobState, err error) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	now := time.Now()
	state.LastUpdated = now
	if state.EndTime == nil {
		state.EndTime = &now
	}
	if state.Status == StatusCancelled {
		return
	}

	switch metrics.StatusFor(err) {
	case metrics.StatusCompleted:
		state.Status = StatusCompleted
	case metrics.StatusCancelled:
		state.Status = StatusCancelled
	default:
		state.Status = StatusFailed
		state.Err = err.Error()
	}
}

// jobReporter mirrors per-step progress into the job state
type jobReporter struct {
	s     *Server
	state *JobState
}

func (r *jobReporter) Start(int, optimization.Shape) {}

func (r *jobReporter) Step(iteration int, loss float64) {
	r.s.jobsMu.Lock()
	defer r.s.jobsMu.Unlock()

	r.state.Completed = iteration + 1
	r.state.Losses = append(r.state.Losses, loss)
	if limit := r.s.cfg.Optimization.HistoryLimit; limit > 0 && len(r.state.Losses) > 2*limit {
		// Keep the tail only; status never returns more than limit entries
		r.state.Losses = append(r.state.Losses[:0], r.state.Losses[len(r.state.Losses)-limit:]...)
	}
	r.state.LastUpdated = time.Now()
}

func (r *jobReporter) Finish(error) {}

// jobStatus returns the current status and results of an optimization job.
func (s *Server) jobStatus(id string) (map[string]interface{}, error) {
	if id == "" {
		return nil, invalidParams("optimization_id is required")
	}

	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()

	state, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("optimization not found")
	}

	progressFrac := 1.0
	if state.Iterations > 0 {
		progressFrac = float64(state.Completed) / float64(state.Iterations)
	}

	losses := state.Losses
	if limit := s.cfg.Optimization.HistoryLimit; limit > 0 && len(losses) > limit {
		losses = losses[len(losses)-limit:]
	}

	response := map[string]interface{}{
		"optimization_id": state.ID,
		"status":          state.Status,
		"objective":       state.Objective,
		"optimizer":       state.Optimizer,
		"learning_rate":   jsonFloat(state.LearningRate),
		"progress":        progressFrac,
		"iteration":       state.Completed,
		"iterations":      state.Iterations,
		"shape":           state.Shape,
		"x":               jsonFloats(state.X),
		"loss_history":    jsonFloats(losses),
		"start_time":      state.StartTime.Format(time.RFC3339),
		"last_update":     state.LastUpdated.Format(time.RFC3339),
	}
	if n := len(state.Losses); n > 0 {
		response["loss"] = jsonFloat(state.Losses[n-1])
	}
	if state.EndTime != nil {
		response["end_time"] = state.EndTime.Format(time.RFC3339)
	}
	if state.Err != "" {
		response["error"] = state.Err
	}

	return response, nil
}

// errTerminal is returned when cancelling a job that already ended
type errTerminal struct{ status string }

func (e errTerminal) Error() string {
	return fmt.Sprintf("cannot cancel optimization with status: %s", e.status)
}

// cancelJob cancels a pending or running job.
func (s *Server) cancelJob(id string) error {
	if id == "" {
		return invalidParams("optimization_id is required")
	}

	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()

	state, exists := s.jobs[id]
	if !exists {
		return fmt.Errorf("optimization not found")
	}

	switch state.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return paramsError{errTerminal{state.Status}}
	}

	if state.CancelFunc != nil {
		state.CancelFunc()
	}

	state.Status = StatusCancelled
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	s.logger.Info("Optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})

	return nil
}

func objectiveList() []map[string]string {
	names := objectives.Names()
	list := make([]map[string]string, 0, len(names))
	for _, name := range names {
		desc, _ := objectives.Describe(name)
		list = append(list, map[string]string{"name": name, "description": desc})
	}
	return list
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data string) {
	s.logger.Warn("RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
		"data":    data,
	})

	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != "" {
		rpcErr["data"] = data
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	})
}

// writeJSON encodes v before sending any header so an encoding failure can
// still be answered with a 500.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", map[string]interface{}{"error": err})
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// jsonFloat encodes NaN and infinities, which JSON numbers cannot hold, as
// the strings "NaN", "+Inf" and "-Inf". A diverging run produces them.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	switch {
	case math.IsNaN(v):
		return []byte(`"NaN"`), nil
	case math.IsInf(v, 1):
		return []byte(`"+Inf"`), nil
	case math.IsInf(v, -1):
		return []byte(`"-Inf"`), nil
	}
	return json.Marshal(v)
}

// jsonFloats copies xs into a freshly allocated slice of jsonFloat
func jsonFloats(xs []float64) []jsonFloat {
	out := make([]jsonFloat, len(xs))
	for i, v := range xs {
		out[i] = jsonFloat(v)
	}
	return out
}

// Close cancels every job and waits for their goroutines to return
func (s *Server) Close() error {
	s.jobsMu.Lock()
	for _, job := range s.jobs {
		if job.CancelFunc != nil {
			job.CancelFunc()
		}
	}
	s.jobsMu.Unlock()

	s.wg.Wait()
	return nil
}

// handleOptimize handles POST /api/v1/optimize
func (s *Server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("Invalid request body: %v", err),
		})
		return
	}

	result, err := s.startJob(r.Context(), req)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusAccepted, result)
}

// handleStatus handles GET /api/v1/status/{id}
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := s.jobStatus(chi.URLParam(r, "id"))
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// handleCancel handles DELETE /api/v1/optimization/{id}
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	err := s.cancelJob(chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusNotFound
		var pe paramsError
		if apperrors.As(err, &pe) {
			status = http.StatusConflict
		}
		s.writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "cancellation requested",
	})
}

// handleObjectives handles GET /api/v1/objectives
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, objectiveList())
}
