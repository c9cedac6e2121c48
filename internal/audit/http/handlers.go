package audithttp

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/branchdesk/internal/audit"
	"github.com/odyssey-erp/branchdesk/internal/platform/httpx"
	"github.com/odyssey-erp/branchdesk/internal/rbac"
	"github.com/odyssey-erp/branchdesk/internal/shared"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// Handler serves the audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	rbac    rbac.Middleware
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Audit timeline retrieved", result)
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		Entity:   q.Get("entity"),
		EntityID: q.Get("entityId"),
		Action:   q.Get("action"),
	}
	verr := &shared.ValidationError{}

	parseTime := func(field string) time.Time {
		v := strings.TrimSpace(q.Get(field))
		if v == "" {
			return time.Time{}
		}
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			return ts
		}
		if day, err := time.Parse(time.DateOnly, v); err == nil {
			return day
		}
		verr.Add(field, field+" must be RFC3339 or YYYY-MM-DD")
		return time.Time{}
	}
	parsePositive := func(field string) int {
		v := strings.TrimSpace(q.Get(field))
		if v == "" {
			return 0
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			verr.Add(field, field+" must be a positive integer")
			return 0
		}
		return n
	}

	filters.From = parseTime("from")
	filters.To = parseTime("to")
	filters.Page = parsePositive("page")
	filters.PageSize = parsePositive("pageSize")
	filters.ActorID = int64(parsePositive("actorId"))

	if !verr.Empty() {
		return audit.TimelineFilters{}, verr
	}
	return filters, nil
}
