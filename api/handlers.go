package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ledgerrun/ledgerrun/fault"
	"github.com/ledgerrun/ledgerrun/id"
)

// runResponse is the wire shape for a workflow run.
type runResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	State       string      `json:"state"`
	RunState    interface{} `json:"runState,omitempty"`
	Output      interface{} `json:"output,omitempty"`
	Error       string      `json:"error,omitempty"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	amountRaw := r.URL.Query().Get("amount")

	amount, err := strconv.Atoi(amountRaw)
	if err != nil {
		s.writeError(w, r, fault.Validation("amount must be an integer"))
		return
	}

	run, err := s.engine.CreateTransfer(r.Context(), from, to, amount)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID.String()})
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := s.engine.Balances(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, balances)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fault.Validation("invalid run id"))
		return
	}

	run, err := s.engine.GetRun(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := runResponse{
		ID:          run.ID.String(),
		Name:        run.Name,
		State:       string(run.State),
		Error:       run.Error,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}
	if len(run.Output) > 0 {
		resp.Output = rawJSON(run.Output)
	}
	if snap, err := s.engine.RunState(r.Context(), runID); err == nil && len(snap) > 0 {
		resp.RunState = rawJSON(snap)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSetApproval(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fault.Validation("invalid run id"))
		return
	}

	approved, err := strconv.ParseBool(r.URL.Query().Get("isApproved"))
	if err != nil {
		s.writeError(w, r, fault.Validation("isApproved must be a boolean"))
		return
	}

	if err := s.engine.Approve(r.Context(), runID, approved); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"approved": approved})
}

func (s *Server) handleStartVending(w http.ResponseWriter, r *http.Request) {
	run, err := s.engine.StartVendingSession(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"runId": run.ID.String()})
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fault.Validation("invalid run id"))
		return
	}

	product := r.URL.Query().Get("product")
	if product == "" {
		s.writeError(w, r, fault.Validation("product is required"))
		return
	}

	if err := s.engine.AddProduct(r.Context(), runID, product); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"product": product})
}

func (s *Server) handleAddCoin(w http.ResponseWriter, r *http.Request) {
	runID, err := id.ParseRunID(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, fault.Validation("invalid run id"))
		return
	}

	amount, err := strconv.Atoi(r.URL.Query().Get("amount"))
	if err != nil {
		s.writeError(w, r, fault.Validation("amount must be an integer"))
		return
	}

	if err := s.engine.InsertCoin(r.Context(), runID, amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"amount": amount})
}
