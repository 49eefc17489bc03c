package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/50zero/pm-trader-art/internal/contract"
)

type uriRequest struct {
	URI string `json:"uri"`
}

type adminResponse struct {
	Success         bool   `json:"success"`
	Action          string `json:"action"`
	TransactionHash string `json:"transaction_hash"`
	ExplorerURL     string `json:"explorer_url"`
}

func (s *Server) handleSetBaseURI(w http.ResponseWriter, r *http.Request) {
	uri, ok := s.readURI(w, r)
	if !ok {
		return
	}
	s.runAdmin(w, r, "set_base_uri", func(ctx context.Context) (common.Hash, error) {
		return s.contract.SetBaseURI(ctx, uri)
	})
}

func (s *Server) handleSetContractURI(w http.ResponseWriter, r *http.Request) {
	uri, ok := s.readURI(w, r)
	if !ok {
		return
	}
	s.runAdmin(w, r, "set_contract_uri", func(ctx context.Context) (common.Hash, error) {
		return s.contract.SetContractURI(ctx, uri)
	})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.runAdmin(w, r, "pause_minting", s.contract.PauseMinting)
}

func (s *Server) handleUnpause(w http.ResponseWriter, r *http.Request) {
	s.runAdmin(w, r, "unpause_minting", s.contract.UnpauseMinting)
}

func (s *Server) readURI(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req uriRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json payload")
		return "", false
	}
	uri := strings.TrimSpace(req.URI)
	if uri == "" {
		writeError(w, http.StatusBadRequest, "uri is required")
		return "", false
	}
	return uri, true
}

func (s *Server) runAdmin(w http.ResponseWriter, r *http.Request, action string, send func(context.Context) (common.Hash, error)) {
	hash, err := send(r.Context())
	switch {
	case errors.Is(err, contract.ErrReadOnly):
		s.metrics.incAdmin(action, "read_only")
		writeError(w, http.StatusServiceUnavailable, "owner key is not configured")
		return
	case err != nil:
		s.metrics.incAdmin(action, "failed")
		s.logger.Error("admin action failed", "action", action, "err", err)
		writeError(w, http.StatusBadGateway, "failed to send transaction: "+err.Error())
		return
	}

	s.metrics.incAdmin(action, "sent")
	s.logger.Info("admin action sent", "action", action, "hash", hash.Hex(), "request_id", r.Header.Get(requestIDHeader))
	writeJSON(w, http.StatusAccepted, adminResponse{
		Success:         true,
		Action:          action,
		TransactionHash: hash.Hex(),
		ExplorerURL:     s.cfg.Chain.BlockExplorer + "/tx/" + hash.Hex(),
	})
}

type probe struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

func runProbe(ctx context.Context, fn func(context.Context) error) probe {
	if fn == nil {
		return probe{Connected: true}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		return probe{Error: err.Error()}
	}
	return probe{Connected: true, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rpc := runProbe(ctx, s.rpcHealthFn)
	db := runProbe(ctx, s.dbHealthFn)

	status, code := "healthy", http.StatusOK
	if !rpc.Connected || !db.Connected {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	writeJSON(w, code, struct {
		Status   string `json:"status"`
		ChainID  uint64 `json:"chain_id"`
		Network  string `json:"network"`
		RPC      probe  `json:"rpc"`
		Database probe  `json:"database"`
	}{
		Status:   status,
		ChainID:  s.cfg.Chain.ChainID,
		Network:  s.cfg.Chain.NetworkName,
		RPC:      rpc,
		Database: db,
	})
}
