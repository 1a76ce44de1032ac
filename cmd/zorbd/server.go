// server.go - HTTP surface of the pool daemon
package main

import (
	"encoding/json"
	"math/big"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zorb-labs/zorbcore/internal/ledger"
	"github.com/zorb-labs/zorbcore/internal/merkle"
	"github.com/zorb-labs/zorbcore/internal/note"
	"github.com/zorb-labs/zorbcore/internal/nullset"
	"github.com/zorb-labs/zorbcore/internal/prover"
	"github.com/zorb-labs/zorbcore/internal/reward"
	"github.com/zorb-labs/zorbcore/internal/statement"
)

type server struct {
	ledger  *ledger.Ledger
	metrics *MetricsCollector
	health  *HealthChecker
	limiter *ClientRateLimiter
	log     zerolog.Logger
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/roots", s.handleRoots)
	mux.HandleFunc("/epoch", s.handleEpoch)
	mux.HandleFunc("/epoch/rate", s.handleEpochRate)
	mux.HandleFunc("/epoch/freeze", s.handleEpochFreeze)
	mux.HandleFunc("/epoch/finalize", s.handleEpochFinalize)
	mux.HandleFunc("/submit", s.handleSubmit)
	return mux
}

func (s *server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("encode response")
	}
}

func (s *server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	s.writeJSON(w, status, health)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.metrics.GetMetricsSummary())
}

func (s *server) handleRoots(w http.ResponseWriter, r *http.Request) {
	roots := s.ledger.CurrentRoots()
	s.writeJSON(w, http.StatusOK, map[string]string{
		"commitment_root": roots.Commitment.String(),
		"nullifier_root":  roots.Nullifier.String(),
	})
}

func (s *server) handleEpoch(w http.ResponseWriter, r *http.Request) {
	e := s.ledger.CurrentEpoch()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     e.ID,
		"rate":   e.Rate.String(),
		"status": e.Status.String(),
	})
}

func (s *server) handleEpochRate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req struct {
		Rate string `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	rate, ok := new(big.Int).SetString(req.Rate, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, errors.Errorf("rate %q is not a decimal integer", req.Rate))
		return
	}
	if err := s.ledger.SetEpochRate(rate); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.handleEpoch(w, r)
}

func (s *server) handleEpochFreeze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req struct {
		Epoch uint64 `json:"epoch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	if err := s.ledger.FreezeEpoch(req.Epoch); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.handleEpoch(w, r)
}

func (s *server) handleEpochFinalize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req struct {
		Epoch uint64 `json:"epoch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}
	next, err := s.ledger.FinalizeEpoch(req.Epoch)
	if err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     next.ID,
		"rate":   next.Rate.String(),
		"status": next.Status.String(),
	})
}

type submitRequest struct {
	Proof  prover.Proof           `json:"proof"`
	Public statement.PublicInputs `json:"public"`
}

func (s *server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	client := clientID(r)
	if !s.limiter.Allow(client) {
		s.metrics.RecordRateLimited(client)
		s.writeError(w, http.StatusTooManyRequests, errors.New("submission rate exceeded"))
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode request"))
		return
	}

	start := time.Now()
	res, err := s.ledger.Submit(&req.Proof, req.Public)
	if err != nil {
		s.metrics.RecordSpendRejected(rejectionReason(err))
		s.writeError(w, statusFor(err), err)
		return
	}
	s.metrics.RecordSpendAccepted(time.Since(start))
	st := s.ledger.Stats()
	s.metrics.RecordPoolState(st.Commitments, st.Nullifiers, st.Epoch)

	e := s.ledger.CurrentEpoch()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"statement_id":    res.StatementID,
		"indices":         res.Indices,
		"commitment_root": res.Roots.Commitment.String(),
		"nullifier_root":  res.Roots.Nullifier.String(),
		"epoch":           e.ID,
	})
}

// statusFor maps ledger rejections to HTTP status codes. State conflicts a
// client can resolve by rebuilding the statement get 409.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nullset.ErrAlreadySpent),
		errors.Is(err, ledger.ErrStaleRoot),
		errors.Is(err, reward.ErrAlreadyFrozen),
		errors.Is(err, reward.ErrNotFrozen),
		errors.Is(err, reward.ErrUnknownEpoch),
		errors.Is(err, reward.ErrRateRegression):
		return http.StatusConflict
	case errors.Is(err, merkle.ErrTreeFull), errors.Is(err, nullset.ErrTreeFull):
		return http.StatusInsufficientStorage
	default:
		return http.StatusBadRequest
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, nullset.ErrAlreadySpent):
		return "already_spent"
	case errors.Is(err, note.ErrDuplicateNullifierInTx):
		return "duplicate_nullifier"
	case errors.Is(err, ledger.ErrStaleRoot):
		return "stale_root"
	case errors.Is(err, statement.ErrVersionMismatch):
		return "version_mismatch"
	case errors.Is(err, ledger.ErrProofInvalid):
		return "proof_invalid"
	case errors.Is(err, merkle.ErrTreeFull), errors.Is(err, nullset.ErrTreeFull):
		return "tree_full"
	default:
		return "other"
	}
}

func clientID(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
