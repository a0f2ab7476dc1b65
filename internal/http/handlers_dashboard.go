package http

import (
	"net/http"

	"dinero/internal/core"
	applog "dinero/internal/log"
)

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, core.AllCategories())
}

// handleDashboardData serves the dashboard aggregate, from cache when a
// fresh copy is available. Every write through this server drops the cache.
// Income, expense and chart figures leave out transfer legs.
func (s *Server) handleDashboardData(w http.ResponseWriter, r *http.Request) {
	if s.dashboardCache != nil {
		if data, ok := s.dashboardCache.Get(dashboardCacheKey); ok {
			s.logger.DebugContext(r.Context(), "Dashboard cache hit", applog.FieldComponent, applog.ComponentCache)
			writeJSON(w, http.StatusOK, data)
			return
		}
	}

	gen := s.dashboardGeneration()
	data, err := s.ledger.Dashboard.Dashboard(r.Context(), s.now())
	if err != nil {
		writeError(w, r, applog.OpRead, err)
		return
	}

	if s.dashboardCache != nil && !s.cacheDashboard(gen, data) {
		s.logger.DebugContext(r.Context(), "Dashboard changed while computing, not cached", applog.FieldComponent, applog.ComponentCache)
	}
	writeJSON(w, http.StatusOK, data)
}
