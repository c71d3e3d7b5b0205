package organizations

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dispatch-ext/backend/internal/middleware"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/response"
	"github.com/dispatch-ext/backend/pkg/storage"
)

// Handler handles organization HTTP endpoints.
type Handler struct {
	svc *Service
}

// NewHandler creates an organizations handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// CreateOrganizationRequest is the body for POST /organizations.
type CreateOrganizationRequest struct {
	Name string `json:"name"`
}

// UpdateOrganizationRequest is the body for PUT /organizations/:id. Absent fields are left untouched.
type UpdateOrganizationRequest struct {
	Name     *string        `json:"name"`
	Slug     *string        `json:"slug"`
	Logo     *string        `json:"logo"`
	Metadata map[string]any `json:"metadata"`
}

// Create handles POST /organizations.
func (h *Handler) Create(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body CreateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	org, err := h.svc.Create(c.Request.Context(), actor, body.Name)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, org)
}

// List handles GET /organizations (SUPER_ADMIN).
func (h *Handler) List(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	list, err := h.svc.ListAll(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, list)
}

// Mine handles GET /organizations/me.
func (h *Handler) Mine(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	org, err := h.svc.GetMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Role handles GET /organizations/role.
func (h *Handler) Role(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	info, err := h.svc.GetRole(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, info)
}

// Get handles GET /organizations/:id.
func (h *Handler) Get(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	org, err := h.svc.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Update handles PUT /organizations/:id.
func (h *Handler) Update(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var body UpdateOrganizationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	patch := models.OrganizationPatch{Name: body.Name, Slug: body.Slug, Logo: body.Logo, Metadata: body.Metadata}
	org, err := h.svc.Update(c.Request.Context(), actor, c.Param("id"), patch)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}

// Delete handles DELETE /organizations/:id (SUPER_ADMIN).
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, "Successfully deleted")
}

// UploadLogo handles POST /organizations/:id/logo (multipart field "logo").
func (h *Handler) UploadLogo(c *gin.Context) {
	actor, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxLogoFileSize+1024*1024)
	fh, err := c.FormFile("logo")
	if err != nil {
		response.BadRequest(c, "logo file is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "could not read logo file")
		return
	}
	defer f.Close()

	org, err := h.svc.UploadLogo(c.Request.Context(), actor, c.Param("id"), LogoUpload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, org)
}
