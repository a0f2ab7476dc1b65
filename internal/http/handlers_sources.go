package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"dinero/internal/core"
	applog "dinero/internal/log"
)

type balanceResponse struct {
	SourceID int64           `json:"source_id"`
	Balance  decimal.Decimal `json:"balance"`
	AsOf     *time.Time      `json:"as_of"`
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.ledger.Sources.ListSources(r.Context())
	if err != nil {
		writeError(w, r, applog.OpList, err)
		return
	}
	if sources == nil {
		sources = []core.SourceBalance{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var req createSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	initial := decimal.Zero
	if req.InitialBalance != "" {
		var err error
		if initial, err = req.InitialBalance.Decimal(); err != nil {
			writeError(w, r, applog.OpCreate, err)
			return
		}
	}

	src, err := s.ledger.Sources.CreateSource(r.Context(), sanitizeInput(req.Name), initial)
	if err != nil {
		writeError(w, r, applog.OpCreate, err)
		return
	}

	atomic.AddInt64(&s.appMetrics.sourcesCreated, 1)
	s.invalidateDashboard()
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleArchiveSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpArchive, err)
		return
	}
	if err := s.ledger.Sources.ArchiveSource(r.Context(), id); err != nil {
		writeError(w, r, applog.OpArchive, err)
		return
	}
	s.invalidateDashboard()
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSourceBalance(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	asOf, err := parseAsOf(r.URL.Query())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}

	balance, err := s.ledger.Sources.Balance(r.Context(), id, asOf)
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{SourceID: id, Balance: balance, AsOf: asOf})
}
