package billing_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/billing"
	"github.com/dispatch-ext/backend/internal/models"
)

var _ = Describe("Handler", func() {
	var (
		router   *gin.Engine
		store    *memStore
		identity *auth.Identity
	)

	type envelope struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}

	do := func(method, path, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var env envelope
		if w.Body.Len() > 0 {
			Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		}
		return w, env
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		store = newMemStore()
		store.orgs["org1"] = &models.Organization{ID: "org1", Name: "Acme", Slug: "acme"}
		identity = &auth.Identity{UserID: "root"}
		svc := billing.NewService(store, orgLookup{store}, &mockAuthority{superAdmins: map[string]bool{"root": true}}, nil)
		h := billing.NewHandler(svc)

		router = gin.New()
		router.Use(func(c *gin.Context) {
			if identity != nil {
				auth.SetIdentity(c, identity)
			}
			c.Next()
		})
		router.GET("/plans", h.ListPlans)
		router.POST("/plans", h.CreatePlan)
		router.GET("/plans/:planId", h.GetPlan)
		router.PATCH("/plans/:planId", h.UpdatePlan)
		router.DELETE("/plans/:planId", h.DeletePlan)
		router.GET("/subscriptions", h.ListSubscriptions)
		router.POST("/subscriptions", h.CreateSubscription)
		router.GET("/subscriptions/:id", h.GetSubscription)
		router.POST("/subscriptions/:id/cancel", h.CancelSubscription)
	})

	createPlan := func() string {
		w, env := do(http.MethodPost, "/plans", `{"name":"Pro","pricePerSeat":10,"features":["sso"]}`)
		Expect(w.Code).To(Equal(http.StatusCreated))
		var p models.Plan
		Expect(json.Unmarshal(env.Data, &p)).To(Succeed())
		return p.ID
	}

	It("creates and lists plans", func() {
		createPlan()
		w, env := do(http.MethodGet, "/plans", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(string(env.Data)).To(ContainSubstring(`"activeSubscribers":0`))
		Expect(string(env.Data)).To(ContainSubstring(`"pricePerSeat":10`))
	})

	It("returns 400 when the price is not a number", func() {
		w, env := do(http.MethodPost, "/plans", `{"name":"Pro","pricePerSeat":"10","features":[]}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error).To(Equal(billing.ErrPlanInput.Error()))
	})

	It("returns 409 for a duplicate plan name", func() {
		createPlan()
		w, env := do(http.MethodPost, "/plans", `{"name":"Pro","pricePerSeat":1,"features":[]}`)
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(env.Error).To(Equal("Plan already exists"))
	})

	It("returns 403 for plan mutations by regular users", func() {
		identity = &auth.Identity{UserID: "u1"}
		w, _ := do(http.MethodPost, "/plans", `{"name":"Pro","pricePerSeat":1,"features":[]}`)
		Expect(w.Code).To(Equal(http.StatusForbidden))
	})

	It("patches and deletes a plan", func() {
		id := createPlan()
		w, env := do(http.MethodPatch, "/plans/"+id, `{"pricePerSeat":15}`)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(string(env.Data)).To(ContainSubstring(`"name":"Pro"`))

		w, _ = do(http.MethodDelete, "/plans/"+id, "")
		Expect(w.Code).To(Equal(http.StatusNoContent))

		w, env = do(http.MethodGet, "/plans/"+id, "")
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(env.Error).To(Equal("Plan not found"))
	})

	It("creates one ACTIVE subscription per organization", func() {
		id := createPlan()
		body := `{"organizationId":"org1","planId":"` + id + `"}`
		w, env := do(http.MethodPost, "/subscriptions", body)
		Expect(w.Code).To(Equal(http.StatusCreated))
		Expect(string(env.Data)).To(ContainSubstring(`"status":"ACTIVE"`))
		Expect(string(env.Data)).To(ContainSubstring(`"activeSeats":0`))

		w, env = do(http.MethodPost, "/subscriptions", body)
		Expect(w.Code).To(Equal(http.StatusConflict))
		Expect(env.Error).To(Equal("Company already has an active plan"))
	})

	It("returns 400 when ids are missing", func() {
		w, env := do(http.MethodPost, "/subscriptions", `{"organizationId":"org1"}`)
		Expect(w.Code).To(Equal(http.StatusBadRequest))
		Expect(env.Error).To(Equal("organizationId and planId is mandatory"))
	})

	It("returns 404 for an unknown organization", func() {
		id := createPlan()
		w, env := do(http.MethodPost, "/subscriptions", `{"organizationId":"nope","planId":"`+id+`"}`)
		Expect(w.Code).To(Equal(http.StatusNotFound))
		Expect(env.Error).To(Equal("Organization can not be found"))
	})

	It("cancels a subscription", func() {
		id := createPlan()
		_, env := do(http.MethodPost, "/subscriptions", `{"organizationId":"org1","planId":"`+id+`"}`)
		var sub models.Subscription
		Expect(json.Unmarshal(env.Data, &sub)).To(Succeed())

		w, env := do(http.MethodPost, "/subscriptions/"+sub.ID+"/cancel", "")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(string(env.Data)).To(ContainSubstring(`"status":"CANCELED"`))

		w, _ = do(http.MethodGet, "/subscriptions?organizationId=org1", "")
		Expect(w.Code).To(Equal(http.StatusOK))
	})
})
