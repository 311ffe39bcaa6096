package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/walletradar/internal/types"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func (s *Server) handleListSuggested(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	wallets, err := s.wallets.ListTop(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list suggested wallets failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to list wallets")
		return
	}

	total, err := s.wallets.Count(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("count suggested wallets failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to count wallets")
		return
	}

	if wallets == nil {
		wallets = []*types.SuggestedWallet{}
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallets": wallets,
		"total":   total,
	})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !types.ValidAddress(address) {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "invalid wallet address")
		return
	}

	wallet, err := s.wallets.GetByAddress(r.Context(), address)
	if err != nil {
		s.log.Error().Err(err).Str("address", address).Msg("get wallet failed")
		respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "failed to get wallet")
		return
	}
	if wallet == nil {
		respondError(w, http.StatusNotFound, ErrCodeNotFound, "wallet not found")
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"globalCooldown": s.pool.InGlobalCooldown(),
		"credentials":    s.pool.Snapshot(),
	})
}
