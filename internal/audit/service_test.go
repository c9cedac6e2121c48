package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/odyssey-erp/branchdesk/internal/shared"
)

type stubTimelineRepo struct {
	rows     []TimelineRow
	lastCall WindowQuery
}

func (s *stubTimelineRepo) TimelineWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	s.lastCall = q
	if len(s.rows) > q.Limit {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func row(at string, action string) TimelineRow {
	ts, _ := time.Parse(time.RFC3339, at)
	return TimelineRow{At: ts, Action: action, Entity: "branch", EntityID: "65f0c0ffee"}
}

func TestServiceTimelinePaging(t *testing.T) {
	repo := &stubTimelineRepo{rows: []TimelineRow{
		row("2024-03-10T10:00:00Z", "branch.update"),
		row("2024-03-09T09:00:00Z", "branch.deactivate"),
		row("2024-03-08T08:00:00Z", "branch.create"),
	}}
	svc := NewService(repo)
	result, err := svc.Timeline(context.Background(), TimelineFilters{
		Entity:   " branch ",
		Page:     1,
		PageSize: 2,
	})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if !result.Paging.HasNext || result.Paging.NextPage != 2 {
		t.Fatalf("expected next page 2, got %+v", result.Paging)
	}
	if repo.lastCall.Limit != 3 {
		t.Fatalf("expected limit 3, got %d", repo.lastCall.Limit)
	}
	if repo.lastCall.Offset != 0 {
		t.Fatalf("expected offset 0, got %d", repo.lastCall.Offset)
	}
	if repo.lastCall.Entity != "branch" {
		t.Fatalf("expected trimmed entity, got %q", repo.lastCall.Entity)
	}
}

func TestServiceTimelineDefaultsAndCaps(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if result.Rows == nil {
		t.Fatalf("rows must be an empty slice, not nil")
	}
	if result.Paging.PageSize != MaxPageSize || result.Paging.PrevPage != 2 {
		t.Fatalf("unexpected paging %+v", result.Paging)
	}
	if repo.lastCall.Offset != 2*MaxPageSize {
		t.Fatalf("expected offset %d, got %d", 2*MaxPageSize, repo.lastCall.Offset)
	}

	if _, err := svc.Timeline(context.Background(), TimelineFilters{}); err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if repo.lastCall.Limit != DefaultPageSize+1 {
		t.Fatalf("expected default limit, got %d", repo.lastCall.Limit)
	}
}

func TestServiceTimelineRejectsInvertedRange(t *testing.T) {
	svc := NewService(&stubTimelineRepo{})
	_, err := svc.Timeline(context.Background(), TimelineFilters{
		From: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
