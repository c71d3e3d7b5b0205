package members_test

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/members"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/internal/rbac"
	"github.com/dispatch-ext/backend/pkg/apperr"
)

var _ = Describe("Service", func() {
	var (
		ctx      context.Context
		store    *memStore
		tx       *mockTx
		provider *mockProvider
		seats    *mockSeats
		svc      *members.Service
		manager  *auth.Identity
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newMemStore()
		store.org("org1")
		store.org("org2")
		store.user("mgr", models.GlobalRoleUser)
		store.user("owner", models.GlobalRoleUser)
		store.user("alice", models.GlobalRoleUser)
		store.user("root", models.GlobalRoleSuperAdmin)
		store.member("org1", "owner", models.MemberRoleOwner)
		store.member("org1", "mgr", models.MemberRoleManager)

		tx = &mockTx{}
		provider = &mockProvider{}
		seats = &mockSeats{}
		svc = members.NewService(orgView{store}, userView{store}, tx, newAuthority(store), provider, seats, nil)
		manager = &auth.Identity{UserID: "mgr", Credentials: http.Header{"Cookie": {"s=1"}}}
	})

	Describe("Add", func() {
		It("adds a user by id through the provider and locally", func() {
			m, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice", Role: "USER"})

			Expect(err).NotTo(HaveOccurred())
			Expect(m.UserID).To(Equal("alice"))
			Expect(m.User.Email).To(Equal("alice@example.com"))
			Expect(provider.added).To(ConsistOf(authprovider.AddMemberRequest{UserID: "alice", Email: "alice@example.com", Role: "USER", OrganizationID: "org1"}))
			list, _ := store.ListMembers(ctx, "org1")
			Expect(list).To(HaveLen(3))
			Expect(seats.orgs).To(ConsistOf("org1"))
			Expect(store.locked).To(ConsistOf("alice"))
		})

		It("re-checks the membership under the user lock", func() {
			store.onLock = func(userID string) {
				store.member("org2", userID, models.MemberRoleOwner)
			}
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice", Role: "USER"})

			Expect(err).To(MatchError(members.ErrOtherOrganization))
			Expect(tx.rolledBack).To(Equal(1))
			Expect(provider.added).To(BeEmpty())
			list, _ := store.ListMembers(ctx, "org1")
			Expect(list).To(HaveLen(2))
		})

		It("resolves the user by email", func() {
			m, err := svc.Add(ctx, manager, "org1", members.AddInput{Email: "alice@example.com", Role: "ADMIN"})
			Expect(err).NotTo(HaveOccurred())
			Expect(m.UserID).To(Equal("alice"))
		})

		It("requires a target and a role", func() {
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice"})
			Expect(err).To(MatchError(members.ErrAddInput))
			_, err = svc.Add(ctx, manager, "org1", members.AddInput{Role: "USER"})
			Expect(err).To(MatchError(members.ErrAddInput))
		})

		It("denies plain members", func() {
			store.member("org1", "alice", models.MemberRoleUser)
			_, err := svc.Add(ctx, &auth.Identity{UserID: "alice"}, "org1", members.AddInput{UserID: "owner", Role: "USER"})
			Expect(err).To(MatchError(rbac.ErrAccessDenied))
		})

		It("denies the owner, who is not in the manage set", func() {
			_, err := svc.Add(ctx, &auth.Identity{UserID: "owner"}, "org1", members.AddInput{UserID: "alice", Role: "USER"})
			Expect(err).To(MatchError(rbac.ErrAccessDenied))
		})

		It("lets SUPER_ADMIN add without a membership", func() {
			_, err := svc.Add(ctx, &auth.Identity{UserID: "root"}, "org2", members.AddInput{UserID: "alice", Role: "USER"})
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns NotFound for an unknown user", func() {
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "ghost", Role: "USER"})
			Expect(err).To(MatchError(members.ErrUserNotFound))
			Expect(provider.added).To(BeEmpty())
		})

		It("returns NotFound for an unknown organization", func() {
			_, err := svc.Add(ctx, &auth.Identity{UserID: "root"}, "nope", members.AddInput{UserID: "alice", Role: "USER"})
			Expect(err).To(MatchError(members.ErrOrgNotFound))
		})

		It("returns Conflict when the user belongs to another organization", func() {
			store.member("org2", "alice", models.MemberRoleUser)
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice", Role: "USER"})
			Expect(err).To(MatchError(members.ErrOtherOrganization))
			Expect(provider.added).To(BeEmpty())
		})

		It("passes the provider's status and message through and writes nothing", func() {
			provider.addFn = func(context.Context, authprovider.AddMemberRequest) (*authprovider.MemberRecord, error) {
				return nil, apperr.Upstream(http.StatusBadRequest, "Invalid role")
			}
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice", Role: "WIZARD"})
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusBadRequest))
			Expect(err.Error()).To(Equal("Invalid role"))
			Expect(tx.rolledBack).To(Equal(1))
			list, _ := store.ListMembers(ctx, "org1")
			Expect(list).To(HaveLen(2))
			Expect(seats.orgs).To(BeEmpty())
		})

		It("does not fail when the seat recount cannot be queued", func() {
			seats.err = errors.New("redis down")
			_, err := svc.Add(ctx, manager, "org1", members.AddInput{UserID: "alice", Role: "USER"})
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Remove", func() {
		BeforeEach(func() {
			store.member("org1", "alice", models.MemberRoleUser)
		})

		It("removes by email at the provider with the caller's credentials", func() {
			var creds http.Header
			provider.removeFn = func(_ context.Context, _ authprovider.RemoveMemberRequest, c http.Header) error {
				creds = c
				return nil
			}
			Expect(svc.Remove(ctx, manager, "org1", "alice")).To(Succeed())
			Expect(provider.removed).To(ConsistOf(authprovider.RemoveMemberRequest{MemberIDOrEmail: "alice@example.com", OrganizationID: "org1"}))
			Expect(creds.Get("Cookie")).To(Equal("s=1"))
			list, _ := store.ListMembers(ctx, "org1")
			Expect(list).To(HaveLen(2))
		})

		It("requires a user id", func() {
			Expect(svc.Remove(ctx, manager, "org1", " ")).To(MatchError(members.ErrRemoveInput))
		})

		It("returns NotFound for an unknown user", func() {
			Expect(svc.Remove(ctx, manager, "org1", "ghost")).To(MatchError(members.ErrUserNotFound))
		})

		It("keeps the local membership when the provider fails", func() {
			provider.removeFn = func(context.Context, authprovider.RemoveMemberRequest, http.Header) error {
				return apperr.Upstream(http.StatusNotFound, "Member not found")
			}
			err := svc.Remove(ctx, manager, "org1", "alice")
			Expect(apperr.HTTPStatus(err)).To(Equal(http.StatusNotFound))
			Expect(tx.rolledBack).To(Equal(1))
		})
	})

	Describe("List", func() {
		It("lists members with user summaries", func() {
			list, err := svc.List(ctx, manager, "org1")
			Expect(err).NotTo(HaveOccurred())
			Expect(list).To(HaveLen(2))
			Expect(list[0].User).NotTo(BeNil())
		})

		It("denies non managers", func() {
			_, err := svc.List(ctx, &auth.Identity{UserID: "alice"}, "org1")
			Expect(err).To(MatchError(rbac.ErrAccessDenied))
		})
	})

	Describe("ToggleExtension", func() {
		var owner *auth.Identity

		BeforeEach(func() {
			owner = &auth.Identity{UserID: "owner"}
			store.member("org1", "alice", models.MemberRoleUser)
		})

		It("flips the flag back and forth with matching messages", func() {
			first, err := svc.ToggleExtension(ctx, owner, "org1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Message).To(Equal(members.MsgExtensionActivated))
			Expect(first.Member.User.ExtensionEnabled).To(BeTrue())

			second, err := svc.ToggleExtension(ctx, owner, "org1", "alice")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Message).To(Equal(members.MsgExtensionDeactivated))
			Expect(second.Member.User.ExtensionEnabled).To(BeFalse())
			Expect(store.users["alice"].EmailVerified).To(BeFalse())
			Expect(seats.orgs).To(Equal([]string{"org1", "org1"}))
		})

		It("lets SUPER_ADMIN toggle without a membership", func() {
			_, err := svc.ToggleExtension(ctx, &auth.Identity{UserID: "root"}, "org1", "alice")
			Expect(err).NotTo(HaveOccurred())
		})

		It("rejects a missing actor", func() {
			_, err := svc.ToggleExtension(ctx, nil, "org1", "alice")
			Expect(err).To(MatchError(rbac.ErrNoActor))
		})

		It("returns NotFound when the actor is not a member", func() {
			_, err := svc.ToggleExtension(ctx, &auth.Identity{UserID: "mgr"}, "org2", "alice")
			Expect(err).To(MatchError(members.ErrActorNotMember))
		})

		It("forbids managers, who are not owners", func() {
			_, err := svc.ToggleExtension(ctx, manager, "org1", "alice")
			Expect(err).To(MatchError(members.ErrToggleForbidden))
		})

		It("returns NotFound when the target is not a member", func() {
			store.user("bob", models.GlobalRoleUser)
			_, err := svc.ToggleExtension(ctx, owner, "org1", "bob")
			Expect(err).To(MatchError(members.ErrMemberNotFound))
			Expect(store.users["bob"].ExtensionEnabled).To(BeFalse())
		})
	})
})
