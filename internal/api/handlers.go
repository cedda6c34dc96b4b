package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"tradejournal/pkg/tradejournal"
)

const (
	maxBodyBytes     = 1 << 20
	defaultPageLimit = 50
	maxPageLimit     = 500
)

var errEmptyBody = errors.New("request body is required")

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "ok",
		"provider": h.core.ProviderName(),
	})
}

func (h *handler) registerUser(w http.ResponseWriter, r *http.Request) {
	var payload registerUserPayload
	if err := decodeOptionalJSON(w, r, &payload); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	user, err := h.core.EnsureUser(r.Context(), tradejournal.UserProfile{
		ID:          UserIDFromContext(r.Context()),
		Email:       payload.Email,
		DisplayName: payload.DisplayName,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.core.GetUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.core.DeleteUser(r.Context(), UserIDFromContext(r.Context())); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) getQuota(w http.ResponseWriter, r *http.Request) {
	quota, err := h.core.GetQuota(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quota)
}

func (h *handler) listTrades(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := normalizeLimitOffset(
		parseIntDefault(query.Get("limit"), defaultPageLimit),
		parseIntDefault(query.Get("offset"), 0),
	)
	trades, err := h.core.ListTrades(r.Context(), UserIDFromContext(r.Context()), tradejournal.TradeListOptions{
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradesResponse{Items: trades, Limit: limit, Offset: offset})
}

func (h *handler) addTrade(w http.ResponseWriter, r *http.Request) {
	var payload addTradePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	trade, err := h.core.AddTrade(r.Context(), UserIDFromContext(r.Context()), payload.toInput())
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, trade)
}

func (h *handler) getTrade(w http.ResponseWriter, r *http.Request) {
	trade, err := h.core.GetTrade(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trade)
}

func (h *handler) deleteTrade(w http.ResponseWriter, r *http.Request) {
	if err := h.core.DeleteTrade(r.Context(), UserIDFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *handler) getTradeAnalysis(w http.ResponseWriter, r *http.Request) {
	tradeID := chi.URLParam(r, "id")
	analysis, err := h.core.GetTradeAnalysis(r.Context(), UserIDFromContext(r.Context()), tradeID)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeAnalysisResponse{
		TradeID:  tradeID,
		Analysis: analysis,
		Degraded: analysis.Degraded(),
	})
}

func (h *handler) analyzeTradeByPath(w http.ResponseWriter, r *http.Request) {
	h.runTradeAnalysis(w, r, chi.URLParam(r, "id"))
}

func (h *handler) analyzeTrade(w http.ResponseWriter, r *http.Request) {
	var payload analyzeTradePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	h.runTradeAnalysis(w, r, payload.TradeID)
}

func (h *handler) runTradeAnalysis(w http.ResponseWriter, r *http.Request, tradeID string) {
	result, err := h.core.AnalyzeTrade(r.Context(), UserIDFromContext(r.Context()), tradeID)
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.core.GetTradeStats(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) positionSize(w http.ResponseWriter, r *http.Request) {
	var payload positionSizePayload
	if err := decodeJSON(w, r, &payload); err != nil {
		writeBadRequest(w, r, err.Error())
		return
	}
	result, err := tradejournal.CalculatePositionSize(tradejournal.PositionSizeInput{
		Capital:     payload.Capital,
		EntryPrice:  payload.EntryPrice,
		StopLoss:    payload.StopLoss,
		RiskPercent: payload.RiskPercent,
	})
	if err != nil {
		writeErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func parseIntDefault(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return i
}

func normalizeLimitOffset(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
