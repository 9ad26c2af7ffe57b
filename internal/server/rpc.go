package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/mihirnimgade/hypercube-optimization/internal/errors"
	"github.com/mihirnimgade/hypercube-optimization/internal/optimization"
)

// JSON-RPC 2.0 error codes. The -32000 range carries service-specific
// conditions.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcInternalError  = -32000
	rpcJobNotFound    = -32001
	rpcJobFinished    = -32002
	rpcTooManyJobs    = -32003
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *rpcError   `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// jobParams selects an existing optimization by id.
type jobParams struct {
	ID string `json:"id"`
}

// handleRPC serves the JSON-RPC 2.0 endpoint. Protocol errors and service
// errors are both reported in-band with HTTP 200, per the JSON-RPC
// convention.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPCError(w, nil, rpcParseError, "parse error")
		return
	}
	if req.JSONRPC != "2.0" {
		s.writeRPCError(w, req.ID, rpcInvalidRequest, `invalid request: jsonrpc must be "2.0"`)
		return
	}

	var result interface{}
	var err error
	switch req.Method {
	case "optimization.start":
		result, err = s.rpcStart(req.Params)
	case "optimization.status":
		result, err = s.rpcStatus(req.Params)
	case "optimization.cancel":
		result, err = s.rpcCancel(req.Params)
	default:
		s.writeRPCError(w, req.ID, rpcMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
		return
	}

	if err != nil {
		s.writeRPCError(w, req.ID, rpcCode(err), err.Error())
		return
	}

	respondJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result:  result,
	})
}

func (s *Server) rpcStart(params json.RawMessage) (interface{}, error) {
	var req StartRequest
	if err := unmarshalParams(params, &req); err != nil {
		return nil, err
	}

	status, err := s.start(req)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Server) rpcStatus(params json.RawMessage) (interface{}, error) {
	id, err := jobID(params)
	if err != nil {
		return nil, err
	}

	status, err := s.jobs.Status(id)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (s *Server) rpcCancel(params json.RawMessage) (interface{}, error) {
	id, err := jobID(params)
	if err != nil {
		return nil, err
	}

	if err := s.jobs.Cancel(id); err != nil {
		return nil, err
	}

	s.logger.Info("optimization cancelled", map[string]interface{}{
		"optimization_id": id,
	})

	status, err := s.jobs.Status(id)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func jobID(params json.RawMessage) (string, error) {
	var p jobParams
	if err := unmarshalParams(params, &p); err != nil {
		return "", err
	}
	if p.ID == "" {
		return "", apperrors.Wrap(ErrInvalidRequest, "id is required")
	}
	return p.ID, nil
}

func unmarshalParams(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return apperrors.Wrap(ErrInvalidRequest, "params are required")
	}
	if err := json.Unmarshal(params, v); err != nil {
		return apperrors.Wrapf(ErrInvalidRequest, "invalid params: %v", err)
	}
	return nil
}

// rpcCode maps service errors to JSON-RPC error codes.
func rpcCode(err error) int {
	switch {
	case errors.Is(err, ErrJobNotFound):
		return rpcJobNotFound
	case errors.Is(err, ErrJobFinished):
		return rpcJobFinished
	case errors.Is(err, ErrTooManyJobs):
		return rpcTooManyJobs
	case errors.Is(err, ErrInvalidRequest):
		return rpcInvalidParams
	}
	if _, ok := optimization.IsConfigError(err); ok {
		return rpcInvalidParams
	}
	return rpcInternalError
}

func (s *Server) writeRPCError(w http.ResponseWriter, id interface{}, code int, message string) {
	s.logger.Warn("rpc error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	respondJSON(w, http.StatusOK, rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &rpcError{
			Code:    code,
			Message: message,
		},
	})
}
