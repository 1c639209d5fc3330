package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/saeid-a/MentorHubBack/internal/apperrors"
	"github.com/saeid-a/MentorHubBack/internal/models"
	"github.com/saeid-a/MentorHubBack/internal/repository"
)

type stubSettlementReporter struct {
	result     *models.SettlementReport
	err        error
	lastActor  models.Actor
	lastFilter repository.SettlementFilter
	called     bool
}

func (s *stubSettlementReporter) Report(_ context.Context, actor models.Actor, filter repository.SettlementFilter) (*models.SettlementReport, error) {
	s.called = true
	s.lastActor = actor
	s.lastFilter = filter
	return s.result, s.err
}

func TestSettlementReportParsesFilter(t *testing.T) {
	service := &stubSettlementReporter{result: &models.SettlementReport{}}
	handler := NewSettlementHandler(service)

	app := newTestApp(models.RoleAdmin, "1")
	app.Get("/api/v1/settlements/report", handler.Report)

	url := "/api/v1/settlements/report?from=2026-01-01&to=2026-02-01T00:00:00Z&mentor_id=7&product_type=MENTORSHIP_SESSION"
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, url, nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	wantFrom := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wantTo := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !service.lastFilter.From.Equal(wantFrom) || !service.lastFilter.To.Equal(wantTo) {
		t.Fatalf("unexpected range: %v - %v", service.lastFilter.From, service.lastFilter.To)
	}
	if service.lastFilter.MentorID == nil || *service.lastFilter.MentorID != 7 {
		t.Fatalf("expected mentor filter 7, got %v", service.lastFilter.MentorID)
	}
	if service.lastFilter.ProductType != models.ProductTypeMentorship {
		t.Fatalf("unexpected product type %q", service.lastFilter.ProductType)
	}
}

func TestSettlementReportRejectsBadDates(t *testing.T) {
	service := &stubSettlementReporter{}
	handler := NewSettlementHandler(service)

	app := newTestApp(models.RoleAdmin, "1")
	app.Get("/api/v1/settlements/report", handler.Report)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/settlements/report?from=last-week&to=2026-02-01", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if service.called {
		t.Fatalf("service should not be called with unparsable dates")
	}
}

func TestSettlementReportForbiddenForOtherMentor(t *testing.T) {
	service := &stubSettlementReporter{err: apperrors.Forbidden("settlement", "8", 7, "view")}
	handler := NewSettlementHandler(service)

	app := newTestApp(models.RoleMentor, "7")
	app.Get("/api/v1/settlements/report", handler.Report)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/v1/settlements/report?from=2026-01-01&to=2026-02-01&mentor_id=8", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if service.lastActor != (models.Actor{ID: 7, Role: models.RoleMentor}) {
		t.Fatalf("unexpected actor %+v", service.lastActor)
	}
}
