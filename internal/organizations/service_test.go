package organizations_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/internal/organizations"
	"github.com/dispatch-ext/backend/internal/rbac"
	"github.com/dispatch-ext/backend/pkg/apperr"
	"github.com/dispatch-ext/backend/pkg/database"
)

var _ = Describe("Service", func() {
	var (
		ctx       context.Context
		store     *mockStore
		tx        *mockTx
		authority *mockAuthority
		provider  *mockProvider
		logos     *mockLogos
		svc       *organizations.Service
		actor     *auth.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = &mockStore{}
		tx = &mockTx{}
		authority = newMockAuthority()
		provider = &mockProvider{}
		logos = &mockLogos{}
		svc = organizations.NewService(store, tx, authority, provider, logos, nil)
		actor = &auth.Identity{UserID: "u1", Email: "ada@example.com", Credentials: http.Header{"Cookie": {"session=abc"}}}
	})

	Describe("Create", func() {
		It("derives the slug and makes the creator owner when the provider echoes no members", func() {
			var created *models.Organization
			store.createFn = func(_ context.Context, org *models.Organization) error {
				created = org
				return nil
			}

			detail, err := svc.Create(ctx, actor, "  Acme Inc  ")

			Expect(err).NotTo(HaveOccurred())
			Expect(detail).NotTo(BeNil())
			Expect(created.Name).To(Equal("Acme Inc"))
			Expect(created.Slug).To(Equal("acme-inc"))
			Expect(provider.calls).To(ConsistOf(authprovider.CreateOrganizationRequest{Name: "Acme Inc", Slug: "acme-inc"}))
			Expect(store.added).To(HaveLen(1))
			Expect(store.added[0].UserID).To(Equal("u1"))
			Expect(store.added[0].Role).To(Equal(models.MemberRoleOwner))
			Expect(tx.committed).To(Equal(1))
		})

		It("forwards the caller's credentials to the provider", func() {
			var got http.Header
			provider.createFn = func(_ context.Context, req authprovider.CreateOrganizationRequest, creds http.Header) (*authprovider.OrganizationRecord, error) {
				got = creds
				return &authprovider.OrganizationRecord{}, nil
			}
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Get("Cookie")).To(Equal("session=abc"))
		})

		It("mirrors provider members and records the provider id", func() {
			var providerID string
			store.setProviderIDFn = func(_ context.Context, _ string, pid string) error {
				providerID = pid
				return nil
			}
			provider.createFn = func(_ context.Context, req authprovider.CreateOrganizationRequest, _ http.Header) (*authprovider.OrganizationRecord, error) {
				return &authprovider.OrganizationRecord{
					ID:      "org_provider",
					Members: []authprovider.MemberRecord{{UserID: "u1", Role: "owner"}, {UserID: "ghost", Role: "USER"}},
				}, nil
			}
			store.mirrorMemberFn = func(_ context.Context, m *models.Member) (bool, error) {
				return m.UserID != "ghost", nil
			}

			_, err := svc.Create(ctx, actor, "Acme")

			Expect(err).NotTo(HaveOccurred())
			Expect(providerID).To(Equal("org_provider"))
			Expect(store.added).To(HaveLen(2))
		})

		It("rejects an empty name", func() {
			_, err := svc.Create(ctx, actor, "   ")
			Expect(err).To(MatchError(organizations.ErrNameRequired))
			Expect(provider.calls).To(BeEmpty())
		})

		It("rejects a name without slug characters", func() {
			_, err := svc.Create(ctx, actor, "@@@")
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusBadRequest))
		})

		It("returns Conflict when the slug is taken", func() {
			store.slugExistsFn = func(context.Context, string, string) (bool, error) { return true, nil }
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(err).To(MatchError(organizations.ErrSlugTaken))
			Expect(provider.calls).To(BeEmpty())
		})

		It("maps a unique violation that raced the pre-check to Conflict", func() {
			store.createFn = func(context.Context, *models.Organization) error {
				return fmt.Errorf("%w: duplicate key", database.ErrConflict)
			}
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(err).To(MatchError(organizations.ErrSlugTaken))
		})

		It("rolls back and passes provider rejections through", func() {
			provider.createFn = func(context.Context, authprovider.CreateOrganizationRequest, http.Header) (*authprovider.OrganizationRecord, error) {
				return nil, apperr.Upstream(http.StatusBadRequest, "Organization already exists")
			}
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusBadRequest))
			Expect(err.Error()).To(Equal("Organization already exists"))
			Expect(tx.committed).To(Equal(0))
			Expect(tx.rolledBack).To(Equal(1))
		})

		It("hides database failures", func() {
			store.createFn = func(context.Context, *models.Organization) error { return errors.New("connection reset") }
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindInternal))
			e, _ := apperr.As(err)
			Expect(e.Message).To(Equal("Internal server error"))
		})

		It("refuses a second organization to a user who already belongs to one", func() {
			authority.member("u1", "org0", models.MemberRoleOwner)
			_, err := svc.Create(ctx, actor, "Second Org")
			Expect(err).To(MatchError(organizations.ErrAlreadyMember))
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusConflict))
			Expect(provider.calls).To(BeEmpty())
			Expect(store.added).To(BeEmpty())
		})

		It("locks the creator and re-checks the membership inside the transaction", func() {
			store.lockUserFn = func(context.Context, string) error {
				// A concurrent request committed a membership before the lock was granted.
				authority.member("u1", "org0", models.MemberRoleUser)
				return nil
			}
			_, err := svc.Create(ctx, actor, "Acme")
			Expect(err).To(MatchError(organizations.ErrAlreadyMember))
			Expect(store.locked).To(ConsistOf("u1"))
			Expect(provider.calls).To(BeEmpty())
			Expect(tx.rolledBack).To(Equal(1))
		})

		It("lets SUPER_ADMIN create organizations while holding a membership", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			authority.member("u1", "org0", models.MemberRoleOwner)
			_, err := svc.Create(ctx, actor, "Another Org")
			Expect(err).NotTo(HaveOccurred())
			Expect(store.locked).To(BeEmpty())
			Expect(tx.committed).To(Equal(1))
		})
	})

	Describe("Get", func() {
		It("lets SUPER_ADMIN see any organization", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			detail, err := svc.Get(ctx, actor, "org1")
			Expect(err).NotTo(HaveOccurred())
			Expect(detail.ID).To(Equal("org1"))
		})

		It("lets members see their organization", func() {
			authority.member("u1", "org1", models.MemberRoleUser)
			_, err := svc.Get(ctx, actor, "org1")
			Expect(err).NotTo(HaveOccurred())
		})

		It("hides organizations the caller does not belong to", func() {
			authority.member("u1", "org2", models.MemberRoleUser)
			_, err := svc.Get(ctx, actor, "org1")
			Expect(err).To(MatchError(organizations.ErrNotFoundOrNoAccess))
		})

		It("reports a missing organization the same way as a hidden one", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			store.getDetailFn = func(context.Context, string) (*models.OrganizationDetail, error) { return nil, database.ErrNotFound }
			_, err := svc.Get(ctx, actor, "missing")
			Expect(err).To(MatchError(organizations.ErrNotFoundOrNoAccess))
		})
	})

	Describe("ListAll", func() {
		It("requires SUPER_ADMIN", func() {
			_, err := svc.ListAll(ctx, actor)
			Expect(err).To(MatchError(rbac.ErrInsufficientPerms))
		})

		It("returns the list for SUPER_ADMIN", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			store.listDetailsFn = func(context.Context) ([]models.OrganizationDetail, error) {
				return []models.OrganizationDetail{{Organization: models.Organization{ID: "org2"}}, {Organization: models.Organization{ID: "org1"}}}, nil
			}
			list, err := svc.ListAll(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
		})
	})

	Describe("GetMine and GetRole", func() {
		It("returns the effective organization with the member role", func() {
			authority.member("u1", "org1", models.MemberRoleManager)
			mine, err := svc.GetMine(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(mine.ID).To(Equal("org1"))
			Expect(mine.MemberRole).To(Equal(models.MemberRoleManager))
		})

		It("returns NotFound without a membership", func() {
			_, err := svc.GetMine(ctx, actor)
			Expect(err).To(MatchError(organizations.ErrNoMembership))
		})

		It("describes global and member roles", func() {
			authority.member("u1", "org1", models.MemberRoleAdmin)
			info, err := svc.GetRole(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.GlobalRole).To(Equal(models.GlobalRoleUser))
			Expect(*info.OrganizationID).To(Equal("org1"))
			Expect(*info.MemberRole).To(Equal(models.MemberRoleAdmin))
		})

		It("leaves membership fields nil for users without an organization", func() {
			info, err := svc.GetRole(ctx, actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.OrganizationID).To(BeNil())
			Expect(info.MemberRole).To(BeNil())
		})

		It("hides role lookup failures behind an internal error", func() {
			authority.roleErr = errors.New("connection reset")
			_, err := svc.GetRole(ctx, actor)
			Expect(apperr.KindOf(err)).To(Equal(apperr.KindInternal))
			Expect(errors.Is(err, authority.roleErr)).To(BeTrue())
		})
	})

	Describe("Update", func() {
		strPtr := func(s string) *string { return &s }

		BeforeEach(func() {
			authority.member("u1", "org1", models.MemberRoleManager)
		})

		It("applies a partial update", func() {
			org, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{Name: strPtr(" Acme Two ")})
			Expect(err).NotTo(HaveOccurred())
			Expect(org.Name).To(Equal("Acme Two"))
		})

		It("denies members without manage rights", func() {
			authority.member("u2", "org1", models.MemberRoleUser)
			_, err := svc.Update(ctx, &auth.Identity{UserID: "u2"}, "org1", models.OrganizationPatch{Name: strPtr("x")})
			Expect(err).To(MatchError(rbac.ErrAccessDenied))
		})

		It("rejects an empty patch", func() {
			_, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{})
			Expect(err).To(MatchError(organizations.ErrEmptyPatch))
		})

		It("rejects an invalid slug", func() {
			_, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{Slug: strPtr("-bad slug-")})
			Expect(err).To(MatchError(organizations.ErrInvalidSlug))
		})

		It("lowercases a supplied slug", func() {
			var got string
			store.updateFn = func(_ context.Context, id string, p models.OrganizationPatch) (*models.Organization, error) {
				got = *p.Slug
				return &models.Organization{ID: id, Slug: got}, nil
			}
			_, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{Slug: strPtr("Acme-2")})
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal("acme-2"))
		})

		It("returns Conflict when the slug belongs to another organization", func() {
			store.slugExistsFn = func(_ context.Context, slug, exclude string) (bool, error) {
				Expect(exclude).To(Equal("org1"))
				return true, nil
			}
			_, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{Slug: strPtr("taken")})
			Expect(err).To(MatchError(organizations.ErrSlugTaken))
		})

		It("returns NotFound for a missing organization", func() {
			store.getByIDFn = func(context.Context, string) (*models.Organization, error) { return nil, database.ErrNotFound }
			_, err := svc.Update(ctx, actor, "org1", models.OrganizationPatch{Name: strPtr("x")})
			Expect(err).To(MatchError(organizations.ErrOrgNotFound))
		})
	})

	Describe("Delete", func() {
		It("requires SUPER_ADMIN", func() {
			authority.member("u1", "org1", models.MemberRoleOwner)
			err := svc.Delete(ctx, actor, "org1")
			Expect(err).To(MatchError(rbac.ErrInsufficientPerms))
		})

		It("deletes for SUPER_ADMIN", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			var deleted string
			store.deleteFn = func(_ context.Context, id string) error {
				deleted = id
				return nil
			}
			Expect(svc.Delete(ctx, actor, "org1")).To(Succeed())
			Expect(deleted).To(Equal("org1"))
		})

		It("returns NotFound for a missing organization", func() {
			authority.roles["u1"] = models.GlobalRoleSuperAdmin
			store.deleteFn = func(context.Context, string) error { return database.ErrNotFound }
			Expect(svc.Delete(ctx, actor, "org1")).To(MatchError(organizations.ErrOrgNotFound))
		})
	})

	Describe("UploadLogo", func() {
		BeforeEach(func() {
			authority.member("u1", "org1", models.MemberRoleAdmin)
		})

		It("stores the image and patches the logo url", func() {
			org, err := svc.UploadLogo(ctx, actor, "org1", organizations.LogoUpload{
				Filename: "logo.png", ContentType: "image/png", Size: 10, Body: strings.NewReader("png"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(logos.keys).To(HaveLen(1))
			Expect(logos.keys[0]).To(HavePrefix("logos/org1/"))
			Expect(logos.keys[0]).To(HaveSuffix(".png"))
			Expect(*org.Logo).To(Equal("https://logos.example.com/" + logos.keys[0]))
		})

		It("rejects unsupported file types", func() {
			_, err := svc.UploadLogo(ctx, actor, "org1", organizations.LogoUpload{
				Filename: "logo.exe", ContentType: "application/x-msdownload", Size: 10, Body: strings.NewReader("x"),
			})
			Expect(err).To(MatchError(organizations.ErrLogoType))
			Expect(logos.keys).To(BeEmpty())
		})

		It("rejects oversized files", func() {
			_, err := svc.UploadLogo(ctx, actor, "org1", organizations.LogoUpload{
				Filename: "logo.png", ContentType: "image/png", Size: 3 * 1024 * 1024, Body: strings.NewReader("x"),
			})
			Expect(err).To(MatchError(organizations.ErrLogoTooLarge))
		})

		It("returns 503 when storage is not configured", func() {
			svc = organizations.NewService(store, tx, authority, provider, nil, nil)
			_, err := svc.UploadLogo(ctx, actor, "org1", organizations.LogoUpload{
				Filename: "logo.png", ContentType: "image/png", Size: 10, Body: strings.NewReader("x"),
			})
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusServiceUnavailable))
		})
	})
})
