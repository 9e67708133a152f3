package professional

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/staffadmin/pkg/pagination"
)

func newTestHandler() (*Handler, *echo.Echo) {
	h := NewHandler(newTestService())
	return h, echo.New()
}

func TestHandler_CreateProfessional(t *testing.T) {
	h, e := newTestHandler()

	body := `{"first_name":"Ines","last_name":"Garnier","email":"ines@example.org","consultation_fee":"55.00","specialties":["Ostéopathie"]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/professionals", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateProfessional(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}

	var p Professional
	json.Unmarshal(rec.Body.Bytes(), &p)
	if p.Status != StatusPending {
		t.Errorf("expected pending, got %s", p.Status)
	}
	if !p.ConsultationFee.Valid || p.ConsultationFee.Decimal.String() != "55" {
		t.Errorf("expected fee 55, got %v", p.ConsultationFee)
	}
}

func TestHandler_CreateProfessional_BadRequest(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"last_name":"Garnier"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreateProfessional(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400 HTTPError, got %v", err)
	}
}

func TestHandler_GetProfessional_NotFound(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetProfessional(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 HTTPError, got %v", err)
	}
}

func TestHandler_GetProfessional_InvalidID(t *testing.T) {
	h, e := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	if err := h.GetProfessional(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestHandler_ListProfessionals(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreateProfessional(context.Background(), &Professional{FirstName: "A", LastName: "One", Email: "a@example.org"})
	h.svc.CreateProfessional(context.Background(), &Professional{FirstName: "B", LastName: "Two", Email: "b@example.org"})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/professionals", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListProfessionals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected total 2, got %d", resp.Total)
	}
}

func TestHandler_ListProfessionals_FilterStatus(t *testing.T) {
	h, e := newTestHandler()
	p := &Professional{FirstName: "A", LastName: "One", Email: "a@example.org"}
	h.svc.CreateProfessional(context.Background(), p)
	h.svc.CreateProfessional(context.Background(), &Professional{FirstName: "B", LastName: "Two", Email: "b@example.org"})
	h.svc.Activate(context.Background(), p.ID)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/professionals?status=active", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.ListProfessionals(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp pagination.Response
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 {
		t.Errorf("expected total 1, got %d", resp.Total)
	}
}

func TestHandler_Deactivate_Conflict(t *testing.T) {
	h, e := newTestHandler()
	p := &Professional{FirstName: "A", LastName: "One", Email: "a@example.org"}
	h.svc.CreateProfessional(context.Background(), p)

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	err := h.Deactivate(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 HTTPError, got %v", err)
	}
}

func TestHandler_SetSpecialties(t *testing.T) {
	h, e := newTestHandler()
	p := &Professional{FirstName: "A", LastName: "One", Email: "a@example.org"}
	h.svc.CreateProfessional(context.Background(), p)

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"specialties":["Pédiatrie","Sport","Sport"]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(p.ID.String())

	if err := h.SetSpecialties(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, _ := h.svc.GetProfessional(context.Background(), p.ID)
	if len(got.Specialties) != 2 {
		t.Errorf("expected 2 specialties, got %v", got.Specialties)
	}
}

func TestHandler_CreateProfessional_DuplicateEmail(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreateProfessional(context.Background(), &Professional{FirstName: "A", LastName: "One", Email: "a@example.org"})

	body := `{"first_name":"B","last_name":"Two","email":"A@example.org"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/professionals", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.CreateProfessional(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409 HTTPError, got %v", err)
	}
}
