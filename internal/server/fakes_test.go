package server_test

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/dispatch-ext/backend/internal/auth"
	"github.com/dispatch-ext/backend/internal/authprovider"
	"github.com/dispatch-ext/backend/internal/models"
	"github.com/dispatch-ext/backend/pkg/database"
)

// tokenResolver maps bearer tokens to identities.
type tokenResolver map[string]*auth.Identity

func (r tokenResolver) Resolve(_ context.Context, h http.Header) (*auth.Identity, error) {
	if id, ok := r[h.Get("Authorization")]; ok {
		return id, nil
	}
	return nil, auth.ErrUnauthenticated
}

// memDB backs organizations, memberships and users in memory.
type memDB struct {
	mu      sync.Mutex
	users   map[string]*models.User
	orgs    map[string]*models.Organization
	members []models.Member
}

func newMemDB() *memDB {
	return &memDB{users: map[string]*models.User{}, orgs: map[string]*models.Organization{}}
}

func (d *memDB) GetByID(_ context.Context, id string) (*models.Organization, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.orgs[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (d *memDB) Create(_ context.Context, org *models.Organization) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.orgs {
		if o.Slug == org.Slug {
			return database.ErrConflict
		}
	}
	cp := *org
	d.orgs[org.ID] = &cp
	return nil
}

func (d *memDB) SetProviderID(_ context.Context, id, providerID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.orgs[id].ProviderID = providerID
	return nil
}

func (d *memDB) SlugExists(_ context.Context, slug, excludeID string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, o := range d.orgs {
		if o.Slug == slug && o.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDB) Update(ctx context.Context, id string, patch models.OrganizationPatch) (*models.Organization, error) {
	d.mu.Lock()
	o, ok := d.orgs[id]
	if ok {
		if patch.Name != nil {
			o.Name = *patch.Name
		}
		if patch.Slug != nil {
			o.Slug = *patch.Slug
		}
		if patch.Logo != nil {
			o.Logo = patch.Logo
		}
	}
	d.mu.Unlock()
	if !ok {
		return nil, database.ErrNotFound
	}
	return d.GetByID(ctx, id)
}

func (d *memDB) Delete(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.orgs[id]; !ok {
		return database.ErrNotFound
	}
	delete(d.orgs, id)
	kept := d.members[:0]
	for _, m := range d.members {
		if m.OrganizationID != id {
			kept = append(kept, m)
		}
	}
	d.members = kept
	return nil
}

func (d *memDB) ListDetails(ctx context.Context) ([]models.OrganizationDetail, error) {
	d.mu.Lock()
	ids := make([]string, 0, len(d.orgs))
	for id := range d.orgs {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	sort.Strings(ids)
	out := make([]models.OrganizationDetail, 0, len(ids))
	for _, id := range ids {
		detail, err := d.GetDetail(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *detail)
	}
	return out, nil
}

func (d *memDB) GetDetail(ctx context.Context, id string) (*models.OrganizationDetail, error) {
	org, err := d.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	detail := &models.OrganizationDetail{Organization: *org, Members: []models.Member{}}
	for _, m := range d.members {
		if m.OrganizationID == id {
			detail.Members = append(detail.Members, m)
		}
	}
	detail.MemberCount = len(detail.Members)
	return detail, nil
}

func (d *memDB) AddMember(_ context.Context, m *models.Member) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, x := range d.members {
		if x.OrganizationID == m.OrganizationID && x.UserID == m.UserID {
			return database.ErrConflict
		}
	}
	d.members = append(d.members, *m)
	return nil
}

func (d *memDB) MirrorMember(ctx context.Context, m *models.Member) (bool, error) {
	d.mu.Lock()
	_, ok := d.users[m.UserID]
	d.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, d.AddMember(ctx, m)
}

func (d *memDB) GetMembership(_ context.Context, orgID, userID string) (*models.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.members {
		if m.OrganizationID == orgID && m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (d *memDB) FirstMembership(_ context.Context, userID string) (*models.Member, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, m := range d.members {
		if m.UserID == userID {
			cp := m
			return &cp, nil
		}
	}
	return nil, database.ErrNotFound
}

func (d *memDB) LockUser(_ context.Context, userID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.users[userID]; !ok {
		return database.ErrNotFound
	}
	return nil
}

// userTable exposes the users map as rbac.UserStore.
type userTable struct{ *memDB }

func (u userTable) GetByID(_ context.Context, id string) (*models.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	usr, ok := u.users[id]
	if !ok {
		return nil, database.ErrNotFound
	}
	cp := *usr
	return &cp, nil
}

type passTx struct{}

func (passTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// echoProvider accepts every call and reports no provider-side members.
type echoProvider struct{}

func (echoProvider) CreateOrganization(_ context.Context, req authprovider.CreateOrganizationRequest, _ http.Header) (*authprovider.OrganizationRecord, error) {
	return &authprovider.OrganizationRecord{Name: req.Name, Slug: req.Slug}, nil
}

func (echoProvider) AddMember(_ context.Context, req authprovider.AddMemberRequest, _ http.Header) (*authprovider.MemberRecord, error) {
	return &authprovider.MemberRecord{UserID: req.UserID, Role: req.Role, OrganizationID: req.OrganizationID}, nil
}

func (echoProvider) RemoveMember(context.Context, authprovider.RemoveMemberRequest, http.Header) error {
	return nil
}
