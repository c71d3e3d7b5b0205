package organizations_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/internal/organizations"
	"github.com/dispatch-ext/backend/pkg/database"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
}

var _ = Describe("Handler", func() {
	var (
		router    *gin.Engine
		store     *mockStore
		authority *mockAuthority
		logos     *mockLogos
		identity  *auth.Identity
	)

	do := func(method, path string, body []byte, contentType string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, bytes.NewReader(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var env envelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		return w, env
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		store = &mockStore{}
		authority = newMockAuthority()
		logos = &mockLogos{}
		identity = &auth.Identity{UserID: "u1", Email: "ada@example.com"}
		svc := organizations.NewService(store, &mockTx{}, authority, &mockProvider{}, logos, nil)
		h := organizations.NewHandler(svc)

		router = gin.New()
		router.Use(func(c *gin.Context) {
			if identity != nil {
				auth.SetIdentity(c, identity)
			}
			c.Next()
		})
		router.POST("/organizations", h.Create)
		router.GET("/organizations", h.List)
		router.GET("/organizations/me", h.Mine)
		router.GET("/organizations/role", h.Role)
		router.GET("/organizations/:id", h.Get)
		router.PUT("/organizations/:id", h.Update)
		router.DELETE("/organizations/:id", h.Delete)
		router.POST("/organizations/:id/logo", h.UploadLogo)
	})

	It("creates an organization with 201", func() {
		w, env := do(http.MethodPost, "/organizations", []byte(`{"name":"Acme Inc"}`), "application/json")
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(env.Success).To(BeTrue())
		Expect(string(env.Data)).To(ContainSubstring(`"slug":"acme"`))
	})

	It("returns 400 for a missing name", func() {
		w, env := do(http.MethodPost, "/organizations", []byte(`{}`), "application/json")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error).To(Equal("Organization name is required"))
	})

	It("returns 400 for a malformed body", func() {
		w, _ := do(http.MethodPost, "/organizations", []byte(`{"name":`), "application/json")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})

	It("returns 409 for a taken slug", func() {
		store.slugExistsFn = func(context.Context, string, string) (bool, error) { return true, nil }
		w, env := do(http.MethodPost, "/organizations", []byte(`{"name":"Acme"}`), "application/json")
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(env.Error).To(Equal("Slug already in use"))
	})

	It("returns 401 without an identity", func() {
		identity = nil
		w, _ := do(http.MethodGet, "/organizations/me", nil, "")
		Expect(w.Code).To(Equal(http.StatusUnauthorized))
	})

	It("returns 403 when a non SUPER_ADMIN lists organizations", func() {
		w, env := do(http.MethodGet, "/organizations", nil, "")
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(env.Error).To(Equal("Insufficient permissions"))
	})

	It("returns 404 for organizations outside the caller's membership", func() {
		w, env := do(http.MethodGet, "/organizations/org9", nil, "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(env.Error).To(Equal("Organization not found or no access"))
	})

	It("returns the caller's role", func() {
		authority.member("u1", "org1", models.MemberRoleManager)
		w, env := do(http.MethodGet, "/organizations/role", nil, "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(string(env.Data)).To(MatchJSON(`{"globalRole":"USER","organizationId":"org1","memberRole":"MANAGER"}`))
	})

	It("updates an organization for managers", func() {
		authority.member("u1", "org1", models.MemberRoleManager)
		w, env := do(http.MethodPut, "/organizations/org1", []byte(`{"name":"Renamed"}`), "application/json")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(string(env.Data)).To(ContainSubstring(`"name":"Renamed"`))
	})

	It("returns 403 when a plain member updates", func() {
		authority.member("u1", "org1", models.MemberRoleUser)
		w, env := do(http.MethodPut, "/organizations/org1", []byte(`{"name":"Renamed"}`), "application/json")
		Expect(w.Code).To(Equal(http.StatusForbidden))
		Expect(env.Error).To(Equal("Access denied: insufficient permissions"))
	})

	It("deletes with a message for SUPER_ADMIN", func() {
		authority.roles["u1"] = models.GlobalRoleSuperAdmin
		w, env := do(http.MethodDelete, "/organizations/org1", nil, "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(env.Message).To(Equal("Successfully deleted"))
	})

	It("returns 404 when deleting a missing organization", func() {
		authority.roles["u1"] = models.GlobalRoleSuperAdmin
		store.deleteFn = func(context.Context, string) error { return database.ErrNotFound }
		w, _ := do(http.MethodDelete, "/organizations/org1", nil, "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
	})

	It("uploads a logo from a multipart form", func() {
		authority.member("u1", "org1", models.MemberRoleAdmin)
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		hdr := textproto.MIMEHeader{}
		hdr.Set("Content-Disposition", `form-data; name="logo"; filename="logo.png"`)
		hdr.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(hdr)
		Expect(err).NotTo(HaveOccurred())
		_, _ = part.Write([]byte("\x89PNG"))
		Expect(mw.Close()).To(Succeed())

		w, env := do(http.MethodPost, "/organizations/org1/logo", buf.Bytes(), mw.FormDataContentType())

		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(logos.keys).To(HaveLen(1))
		Expect(string(env.Data)).To(ContainSubstring(`"logo":"https://logos.example.com/logos/org1/`))
	})

	It("returns 400 when the logo file is missing", func() {
		authority.member("u1", "org1", models.MemberRoleAdmin)
		w, _ := do(http.MethodPost, "/organizations/org1/logo", nil, "multipart/form-data; boundary=x")
		Expect(w.Code).To(Equal(http.StatusBadRequest))
	})
})
