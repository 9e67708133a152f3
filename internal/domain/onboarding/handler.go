package onboarding

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicops/staffadmin/internal/domain/professional"
	"github.com/clinicops/staffadmin/internal/platform/auth"
	"github.com/clinicops/staffadmin/internal/platform/blobstore"
	"github.com/clinicops/staffadmin/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the staff routes. They expect an authenticated group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleStaff, auth.RoleOnboardingManager))
	readGroup.GET("/onboarding", h.ListOverviews)
	readGroup.GET("/professionals/:id/onboarding", h.GetOverview)
	readGroup.GET("/professionals/:id/invites", h.ListInvites)
	readGroup.GET("/professionals/:id/documents", h.ListDocuments)
	readGroup.GET("/submissions/:id", h.GetSubmission)
	readGroup.GET("/documents/:id/download", h.DownloadDocument)
	readGroup.GET("/documents/:id/link", h.DocumentLink)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleOnboardingManager))
	writeGroup.POST("/professionals/:id/activate", h.Activate)
	writeGroup.POST("/professionals/:id/invites", h.CreateInvite)
	writeGroup.POST("/invites/:id/send", h.SendInvite)
	writeGroup.POST("/invites/:id/revoke", h.RevokeInvite)
	writeGroup.POST("/submissions/:id/review", h.ReviewSubmission)
	writeGroup.POST("/submissions/:id/approve", h.ApproveSubmission)
	writeGroup.POST("/professionals/:id/documents", h.UploadDocument)
	writeGroup.POST("/documents/:id/verify", h.VerifyDocument)
	writeGroup.POST("/documents/:id/unverify", h.UnverifyDocument)
	writeGroup.DELETE("/documents/:id", h.DeleteDocument)
}

// RegisterPublicRoutes mounts the invite-token routes used by professionals.
// The token is the only credential.
func (h *Handler) RegisterPublicRoutes(g *echo.Group) {
	g.GET("/invites/:token", h.OpenInvite)
	g.PUT("/invites/:token/questionnaire", h.SaveDraft)
	g.POST("/invites/:token/questionnaire/submit", h.Submit)
}

// -- Overview --

func (h *Handler) GetOverview(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ov, err := h.svc.GetOverview(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ov)
}

func (h *Handler) ListOverviews(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOverviews(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset).WithLinks(c.Request().URL))
}

func (h *Handler) Activate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ov, err := h.svc.Activate(c.Request().Context(), id)
	if err != nil {
		var blocked *ActivationBlockedError
		if errors.As(err, &blocked) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"message":             ErrActivationBlocked.Error(),
				"activation_blockers": blocked.Blockers,
			})
		}
		return httpError(err)
	}
	return c.JSON(http.StatusOK, ov)
}

// -- Invites --

type inviteResponse struct {
	*Invite
	Link string `json:"link,omitempty"`
}

func (h *Handler) CreateInvite(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	inv, err := h.svc.CreateInvite(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, inviteResponse{Invite: inv, Link: h.svc.InviteLink(ctx, inv)})
}

func (h *Handler) ListInvites(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListInvites(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Invite{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) SendInvite(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, link, err := h.svc.SendInvite(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inviteResponse{Invite: inv, Link: link})
}

func (h *Handler) RevokeInvite(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	inv, err := h.svc.RevokeInvite(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, inv)
}

// -- Public questionnaire --

func (h *Handler) OpenInvite(c echo.Context) error {
	session, err := h.svc.OpenInvite(c.Request().Context(), c.Param("token"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, session)
}

type responsesRequest struct {
	Responses json.RawMessage `json:"responses"`
}

func (h *Handler) SaveDraft(c echo.Context) error {
	var req responsesRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sub, err := h.svc.SaveDraft(c.Request().Context(), c.Param("token"), req.Responses)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) Submit(c echo.Context) error {
	var req responsesRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	sub, err := h.svc.Submit(c.Request().Context(), c.Param("token"), req.Responses)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

// -- Submissions --

func (h *Handler) GetSubmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	sub, err := h.svc.GetSubmission(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) ReviewSubmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sub, err := h.svc.ReviewSubmission(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

func (h *Handler) ApproveSubmission(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	sub, err := h.svc.ApproveSubmission(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sub)
}

// -- Documents --

func (h *Handler) UploadDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	file, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}

	var expiresAt *time.Time
	if v := c.FormValue("expires_at"); v != "" {
		t, err := parseExpiry(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid expires_at")
		}
		expiresAt = &t
	}

	src, err := file.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	doc, err := h.svc.UploadDocument(c.Request().Context(), UploadInput{
		ProfessionalID: id,
		Type:           DocumentType(c.FormValue("document_type")),
		FileName:       file.Filename,
		ContentType:    file.Header.Get("Content-Type"),
		ExpiresAt:      expiresAt,
		Content:        src,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, doc)
}

func (h *Handler) ListDocuments(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	items, err := h.svc.ListDocuments(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	if items == nil {
		items = []*Document{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) VerifyDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	doc, err := h.svc.VerifyDocument(ctx, id, auth.UserIDFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) UnverifyDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	doc, err := h.svc.UnverifyDocument(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) DeleteDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDocument(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DownloadDocument(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rc, doc, err := h.svc.DownloadDocument(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, doc.FileName))
	return c.Stream(http.StatusOK, doc.ContentType, io.Reader(rc))
}

type documentLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) DocumentLink(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	u, expires, err := h.svc.DocumentLink(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, documentLink{URL: u, ExpiresAt: expires})
}

// -- helpers --

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

// parseExpiry accepts a plain date or an RFC 3339 timestamp. A plain date is
// the last valid day, so it maps to the end of that day in UTC.
func parseExpiry(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t.AddDate(0, 0, 1).Add(-time.Microsecond), nil
	}
	return time.Parse(time.RFC3339, v)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, blobstore.ErrBlobNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, professional.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "professional not found")
	case errors.Is(err, ErrValidation), errors.Is(err, blobstore.ErrMissingFileName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInviteNotUsable):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, professional.ErrInvalidTransition),
		errors.Is(err, ErrActivationBlocked):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, blobstore.ErrUnreadablePDF):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrLinksUnsupported):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
