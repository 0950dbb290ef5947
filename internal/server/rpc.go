package server

import (
	"encoding/json"
	"net/http"

	"github.com/copyleftdev/seqtune/internal/errors"
	"github.com/copyleftdev/seqtune/internal/study"
)

// JSON-RPC 2.0 error codes.
const (
	rpcParseError     = -32700
	rpcInvalidRequest = -32600
	rpcMethodNotFound = -32601
	rpcInvalidParams  = -32602
	rpcServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      interface{}       `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params,omitempty"`
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, rpcParseError, "Parse error", nil, nil)
		return
	}

	if request.JSONRPC != "2.0" {
		s.respondWithError(w, rpcInvalidRequest, "Invalid Request", request.ID, nil)
		return
	}

	var result interface{}
	var err error

	switch request.Method {
	case "optimization.start":
		result, err = s.rpcOptimizeStart(request.Params)
	case "optimization.status":
		result, err = s.rpcOptimizationStatus(request.Params)
	case "optimization.cancel":
		result, err = s.rpcOptimizationCancel(request.Params)
	case "windows.build":
		result, err = s.rpcWindows(request.Params)
	case "data.impute":
		result, err = s.rpcImpute(request.Params)
	default:
		s.respondWithError(w, rpcMethodNotFound, "Method not found", request.ID, nil)
		return
	}

	if err != nil {
		code := rpcServerError
		switch errors.KindOf(err) {
		case errors.KindConfiguration, errors.KindUnsupportedAlgorithm,
			errors.KindObjectiveSignature, errors.KindInsufficientData:
			code = rpcInvalidParams
		}
		data := map[string]interface{}{"detail": err.Error()}
		if kind := errors.KindOf(err); kind != "" {
			data["kind"] = kind
		}
		s.respondWithError(w, code, "Server error", request.ID, data)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// decodeParam unmarshals the first positional parameter into v.
func decodeParam(params []json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return errors.New(errors.KindConfiguration, "missing required parameters")
	}
	if err := json.Unmarshal(params[0], v); err != nil {
		return errors.Wrap(err, errors.KindConfiguration, "invalid parameter format")
	}
	return nil
}

// rpcOptimizeStart accepts a study document and returns
// {"optimization_id": "...", "status": "pending"}.
func (s *Server) rpcOptimizeStart(params []json.RawMessage) (interface{}, error) {
	var spec study.Spec
	if err := decodeParam(params, &spec); err != nil {
		return nil, err
	}
	job, err := s.startJob(&spec)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"optimization_id": job.ID,
		"status":          StatusPending,
	}, nil
}

func (s *Server) rpcOptimizationStatus(params []json.RawMessage) (interface{}, error) {
	var id string
	if err := decodeParam(params, &id); err != nil {
		return nil, err
	}
	return s.jobStatus(id)
}

func (s *Server) rpcOptimizationCancel(params []json.RawMessage) (interface{}, error) {
	var id string
	if err := decodeParam(params, &id); err != nil {
		return nil, err
	}
	if err := s.cancelJob(id); err != nil {
		return nil, err
	}
	return map[string]string{"status": "cancellation requested"}, nil
}

func (s *Server) rpcWindows(params []json.RawMessage) (interface{}, error) {
	var req windowsRequest
	if err := decodeParam(params, &req); err != nil {
		return nil, err
	}
	return buildWindows(req)
}

func (s *Server) rpcImpute(params []json.RawMessage) (interface{}, error) {
	var req imputeRequest
	if err := decodeParam(params, &req); err != nil {
		return nil, err
	}
	return impute(req)
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}, data map[string]interface{}) {
	s.logger.Error("Request error", map[string]interface{}{
		"status":  code,
		"message": message,
	})

	rpcErr := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		rpcErr["data"] = data
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error":   rpcErr,
		"id":      id,
	})
}
