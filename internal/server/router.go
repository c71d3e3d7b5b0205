// Package server assembles the HTTP router.
package server

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/billing"
	"github.com/dispatch-ext/backend/internal/members"
	"github.com/dispatch-ext/backend/internal/middleware"
	"github.com/dispatch-ext/backend/internal/organizations"
	"github.com/dispatch-ext/backend/pkg/response"
)

// Deps are the components the router dispatches to.
type Deps struct {
	Logger      *zap.Logger
	CORSOrigins []string
	// TracingService enables otelgin spans under this service name when set.
	TracingService string
	// OrgCreateSuperAdminOnly restricts POST /organizations to SUPER_ADMIN.
	OrgCreateSuperAdminOnly bool

	Resolver   middleware.IdentityResolver
	SuperAdmin middleware.SuperAdminChecker

	Auth          *auth.Handler
	Organizations *organizations.Handler
	Members       *members.Handler
	Billing       *billing.Handler
}

// NewRouter builds the gin engine with every route.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if d.TracingService != "" {
		router.Use(otelgin.Middleware(d.TracingService))
	}
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	api := router.Group("")
	api.Use(middleware.Authenticate(d.Resolver))
	superAdmin := middleware.RequireSuperAdmin(d.SuperAdmin)
	{
		api.GET("/me", d.Auth.Me)
		api.GET("/users", superAdmin, d.Auth.List)

		// Organizations; the static segments are registered before :id.
		if d.OrgCreateSuperAdminOnly {
			api.POST("/organizations", superAdmin, d.Organizations.Create)
		} else {
			api.POST("/organizations", d.Organizations.Create)
		}
		api.GET("/organizations", d.Organizations.List)
		api.GET("/organizations/me", d.Organizations.Mine)
		api.GET("/organizations/role", d.Organizations.Role)
		api.GET("/organizations/:id", d.Organizations.Get)
		api.PUT("/organizations/:id", d.Organizations.Update)
		api.DELETE("/organizations/:id", d.Organizations.Delete)
		api.POST("/organizations/:id/logo", d.Organizations.UploadLogo)

		// Members
		api.GET("/organizations/:id/members", d.Members.List)
		api.POST("/organizations/:id/members", d.Members.Add)
		api.DELETE("/organizations/:id/members", d.Members.Remove)
		api.PATCH("/organizations/:id/members/:targetUserId/toggleExtension", d.Members.ToggleExtension)

		// Plans
		api.GET("/plans", d.Billing.ListPlans)
		api.POST("/plans", d.Billing.CreatePlan)
		api.GET("/plans/:planId", d.Billing.GetPlan)
		api.PATCH("/plans/:planId", d.Billing.UpdatePlan)
		api.DELETE("/plans/:planId", d.Billing.DeletePlan)

		// Subscriptions
		api.GET("/subscriptions", d.Billing.ListSubscriptions)
		api.POST("/subscriptions", d.Billing.CreateSubscription)
		api.GET("/subscriptions/:id", d.Billing.GetSubscription)
		api.POST("/subscriptions/:id/cancel", d.Billing.CancelSubscription)
	}

	return router
}
