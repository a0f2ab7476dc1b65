package http

import (
	"net/http"
	"strings"
	"sync/atomic"

	"dinero/internal/core"
	applog "dinero/internal/log"
	"dinero/internal/services"
)

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	sourceID, err := queryID(r.URL.Query(), "source_id")
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	txs, err := s.ledger.Sources.ListTransactions(r.Context(), sourceID)
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var body createTransactionRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	amount, err := body.Amount.Decimal()
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	occurredAt, err := parseDate(body.Date)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	tx, err := s.ledger.Transactions.CreateTransaction(r.Context(), services.CreateTransactionRequest{
		Type:           core.TransactionType(strings.ToUpper(strings.TrimSpace(body.Type))),
		Description:    sanitizeInput(body.Description),
		Amount:         amount,
		Category:       sanitizeInput(body.Category),
		SourceID:       int64(body.SourceID),
		OccurredAt:     occurredAt,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
	s.invalidateDashboard()
	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) handleCreateTransfer(w http.ResponseWriter, r *http.Request) {
	var body createTransferRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	amount, err := body.Amount.Decimal()
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	occurredAt, err := parseDate(body.Date)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	tr, err := s.ledger.Transfers.CreateTransfer(r.Context(), services.CreateTransferRequest{
		FromSourceID:   int64(body.FromSourceID),
		ToSourceID:     int64(body.ToSourceID),
		Amount:         amount,
		Description:    sanitizeInput(body.Description),
		OccurredAt:     occurredAt,
		IdempotencyKey: key,
	})
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.transfersCreated, 1)
	s.invalidateDashboard()
	writeJSON(w, http.StatusCreated, tr)
}
