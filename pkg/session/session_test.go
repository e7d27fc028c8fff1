package session

import (
	"context"
	"testing"

	"github.com/example/quickorder/pkg/auth"
	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/models"
	"github.com/example/quickorder/pkg/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDirectory struct {
	stores map[string]*models.Store
	admins map[string]bool
}

func (f *fakeDirectory) GetStore(_ context.Context, storeID string) (*models.Store, error) {
	if st, ok := f.stores[storeID]; ok {
		copied := *st
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDirectory) StoresByOwner(_ context.Context, email, phone string) ([]models.Store, error) {
	var out []models.Store
	for _, st := range f.stores {
		if (email != "" && st.OwnerEmail == email) || (phone != "" && auth.NormalizePhone(st.OwnerPhone) == phone) {
			out = append(out, *st)
		}
	}
	return out, nil
}

func (f *fakeDirectory) IsDatabaseAdmin(_ context.Context, email, phone string) (bool, error) {
	return f.admins[email] || f.admins[phone], nil
}

type fakePrefs struct {
	prefs map[string]models.Role
}

func (f *fakePrefs) SetRolePreference(_ context.Context, userID string, pref models.Role) error {
	f.prefs[userID] = pref
	return nil
}

func (f *fakePrefs) GetRolePreference(_ context.Context, userID string) (models.Role, error) {
	if p, ok := f.prefs[userID]; ok {
		return p, nil
	}
	return models.RoleCustomer, nil
}

func (f *fakePrefs) ClearRolePreference(_ context.Context, userID string) error {
	delete(f.prefs, userID)
	return nil
}

type fakeFeed struct {
	active   string
	changes  int
	products []models.Product
	orders   []models.Order
	tracked  *models.Order
}

func (f *fakeFeed) SetActiveStore(_ context.Context, storeID string) error {
	f.active = storeID
	f.changes++
	f.products, f.orders, f.tracked = nil, nil, nil
	return nil
}

func (f *fakeFeed) Products() []models.Product { return f.products }
func (f *fakeFeed) Orders() []models.Order     { return f.orders }

func (f *fakeFeed) OrdersForUser(userID string) []models.Order {
	var out []models.Order
	for _, o := range f.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out
}

func (f *fakeFeed) Track(order *models.Order)   { f.tracked = order }
func (f *fakeFeed) TrackedOrder() *models.Order { return f.tracked }

type fixture struct {
	session *Session
	dir     *fakeDirectory
	prefs   *fakePrefs
	tenant  *fakeFeed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := &fakeDirectory{
		stores: map[string]*models.Store{
			"chaistop":  {StoreID: "chaistop", Name: "Chai Stop", OwnerEmail: "meera@example.com", VPA: "meera@okicici", MerchantName: "Chai Stop", IsActive: true},
			"spicemart": {StoreID: "spicemart", Name: "Spice Mart", OwnerEmail: "arjun@example.com", OwnerPhone: "+91 98765 43210", VPA: "arjun@ybl", MerchantName: "Spice Mart", IsActive: true},
		},
		admins: map[string]bool{},
	}
	prefs := &fakePrefs{prefs: map[string]models.Role{}}
	tenant := &fakeFeed{}
	admin := &config.AdminConfig{
		RootEmails: []string{"owner@example.com"},
		RootPhones: []string{"+91-90000-00001"},
	}
	return &fixture{
		session: New(admin, dir, prefs, tenant, zap.NewNop()),
		dir:     dir,
		prefs:   prefs,
		tenant:  tenant,
	}
}

func merchantLogin(t *testing.T, fx *fixture, id auth.Identity) {
	t.Helper()
	// Seed the elevation intent the way a real merchant login does.
	fx.prefs.prefs[id.ID] = models.RoleSeller
	err := fx.session.NavigateToAdmin(context.Background())
	require.ErrorIs(t, err, ErrLoginRequired)
	require.NoError(t, fx.session.SignIn(context.Background(), id))
}

func TestSignInDefaultsToCustomer(t *testing.T) {
	fx := newFixture(t)

	// Owns a store, but never asked for elevation.
	err := fx.session.SignIn(context.Background(), auth.Identity{
		ID: "u1", Name: "Meera", Email: "meera@example.com",
	})
	require.NoError(t, err)

	user := fx.session.User()
	require.NotNil(t, user)
	assert.Equal(t, models.RoleCustomer, user.Role)
	assert.Empty(t, user.ManagedStoreIDs)
}

func TestMerchantLoginResolvesRootByEmail(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "root1", Email: "owner@example.com"})

	require.NotNil(t, fx.session.User())
	assert.Equal(t, models.RoleRoot, fx.session.User().Role)
	assert.Equal(t, models.ViewAdmin, fx.session.View())
	assert.Nil(t, fx.session.Store(), "root lands on the cross-store dashboard")
}

func TestMerchantLoginResolvesRootByNormalizedPhone(t *testing.T) {
	fx := newFixture(t)
	// Different formatting than the configured allow-list entry.
	merchantLogin(t, fx, auth.Identity{ID: "root2", PhoneNumber: "919000000001"})

	require.NotNil(t, fx.session.User())
	assert.Equal(t, models.RoleRoot, fx.session.User().Role)
}

func TestMerchantLoginResolvesRootFromAdminsCollection(t *testing.T) {
	fx := newFixture(t)
	fx.dir.admins["promoted@example.com"] = true
	merchantLogin(t, fx, auth.Identity{ID: "root3", Email: "promoted@example.com"})

	require.NotNil(t, fx.session.User())
	assert.Equal(t, models.RoleRoot, fx.session.User().Role)
}

func TestMerchantLoginAutoRoutesSingleStoreSeller(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})

	user := fx.session.User()
	require.NotNil(t, user)
	assert.Equal(t, models.RoleSeller, user.Role)
	assert.Equal(t, []string{"chaistop"}, user.ManagedStoreIDs)

	assert.Equal(t, models.ViewAdmin, fx.session.View())
	require.NotNil(t, fx.session.Store())
	assert.Equal(t, "chaistop", fx.session.Store().StoreID)
	assert.Equal(t, "/?store=chaistop", fx.session.URL())
	assert.Equal(t, "chaistop", fx.tenant.active)
}

func TestMerchantLoginMultiStoreSellerGetsSelector(t *testing.T) {
	fx := newFixture(t)
	fx.dir.stores["chaistop2"] = &models.Store{
		StoreID: "chaistop2", Name: "Chai Stop 2", OwnerEmail: "meera@example.com", IsActive: true,
	}
	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})

	assert.Equal(t, models.ViewAdmin, fx.session.View())
	assert.Nil(t, fx.session.Store())
	assert.Len(t, fx.session.User().ManagedStoreIDs, 2)
}

func TestSellerMatchedByPhoneDigits(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "s2", PhoneNumber: "(91) 98765-43210"})

	user := fx.session.User()
	require.NotNil(t, user)
	assert.Equal(t, models.RoleSeller, user.Role)
	assert.Equal(t, []string{"spicemart"}, user.ManagedStoreIDs)
}

func TestPendingNavigationForcesCustomerAfterLogin(t *testing.T) {
	fx := newFixture(t)

	err := fx.session.NavigateToStore(context.Background(), "chaistop")
	require.ErrorIs(t, err, ErrLoginRequired)
	assert.Equal(t, "chaistop", fx.session.Snapshot().PendingStore)

	// The viewer would have resolved as root, but they clicked a store.
	fx.prefs.prefs["root1"] = models.RoleRoot
	require.NoError(t, fx.session.SignIn(context.Background(), auth.Identity{
		ID: "root1", Email: "owner@example.com",
	}))

	assert.Equal(t, models.RoleCustomer, fx.session.User().Role)
	assert.Equal(t, models.ViewCustomer, fx.session.View())
	require.NotNil(t, fx.session.Store())
	assert.Equal(t, "chaistop", fx.session.Store().StoreID)
	assert.Empty(t, fx.session.Snapshot().PendingStore)
	assert.Equal(t, models.RoleCustomer, fx.prefs.prefs["root1"], "demotion must persist")
}

func TestBrowsingAStoreDemotesElevatedRole(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})
	require.Equal(t, models.RoleSeller, fx.session.User().Role)

	require.NoError(t, fx.session.NavigateToStore(context.Background(), "spicemart"))

	assert.Equal(t, models.RoleCustomer, fx.session.User().Role)
	assert.Equal(t, models.ViewCustomer, fx.session.View())
	assert.Equal(t, "spicemart", fx.session.Store().StoreID)
	assert.Equal(t, models.RoleCustomer, fx.prefs.prefs["s1"])
}

func TestRootManagesStoreFromAdminView(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "root1", Email: "owner@example.com"})
	require.Equal(t, models.ViewAdmin, fx.session.View())

	require.NoError(t, fx.session.NavigateToStore(context.Background(), "spicemart"))

	// Managing, not shopping: the role survives.
	assert.Equal(t, models.RoleRoot, fx.session.User().Role)
	assert.Equal(t, models.ViewAdmin, fx.session.View())
	assert.Equal(t, "spicemart", fx.session.Store().StoreID)
}

func TestDeepLinkToUnknownStoreFallsBackToLanding(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.session.Open(context.Background(), "ghost"))

	assert.Equal(t, models.ViewLanding, fx.session.View())
	assert.Nil(t, fx.session.Store())
}

func TestBackAndForwardRederiveFromURL(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.session.Open(context.Background(), ""))
	require.NoError(t, fx.session.SignIn(context.Background(), auth.Identity{ID: "u1"}))
	require.NoError(t, fx.session.NavigateToStore(context.Background(), "chaistop"))
	require.Equal(t, "/?store=chaistop", fx.session.URL())

	require.NoError(t, fx.session.Back(context.Background()))
	assert.Equal(t, models.ViewLanding, fx.session.View())
	assert.Nil(t, fx.session.Store())
	assert.Equal(t, "", fx.tenant.active)
	assert.Equal(t, "/", fx.session.URL())

	require.NoError(t, fx.session.Forward(context.Background()))
	assert.Equal(t, models.ViewCustomer, fx.session.View())
	require.NotNil(t, fx.session.Store())
	assert.Equal(t, "chaistop", fx.session.Store().StoreID)
	assert.Equal(t, "chaistop", fx.tenant.active)
}

func TestSignOutClearsEverything(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})
	require.NotNil(t, fx.session.Store())

	fx.session.SignOut(context.Background())

	assert.Nil(t, fx.session.User())
	assert.Nil(t, fx.session.Store())
	assert.Equal(t, models.ViewLanding, fx.session.View())
	assert.Equal(t, "/", fx.session.URL())
	assert.Equal(t, "", fx.tenant.active)
	_, hasPref := fx.prefs.prefs["s1"]
	assert.False(t, hasPref, "sign-out discards the elevation preference")
}

func TestAccessDispatch(t *testing.T) {
	fx := newFixture(t)

	assert.Equal(t, AccessGranted, fx.session.AccessTo(models.ViewLanding))
	assert.Equal(t, AccessGranted, fx.session.AccessTo(models.ViewCustomer))
	assert.Equal(t, AccessLoginRequired, fx.session.AccessTo(models.ViewAdmin))

	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})
	assert.Equal(t, AccessGranted, fx.session.AccessTo(models.ViewAdmin))

	// A seller inspecting a store they do not own is refused, full stop.
	fx.session.currentStore = &models.Store{StoreID: "spicemart"}
	assert.Equal(t, AccessDenied, fx.session.AccessTo(models.ViewAdmin))
}

func TestSnapshotServesLiveFeed(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.session.SignIn(context.Background(), auth.Identity{ID: "u1"}))
	require.NoError(t, fx.session.NavigateToStore(context.Background(), "chaistop"))

	fx.tenant.products = []models.Product{{ID: "p1", StoreID: "chaistop", Name: "Masala Chai"}}
	fx.tenant.orders = []models.Order{
		{ID: "o1", OrderID: "ORD-1", UserID: "u1", Status: models.StatusPending},
		{ID: "o2", OrderID: "ORD-2", UserID: "u2", Status: models.StatusPaid},
	}

	snap := fx.session.Snapshot()
	require.Len(t, snap.Products, 1)
	assert.Equal(t, "Masala Chai", snap.Products[0].Name)

	// A customer only sees their own orders.
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, "ORD-1", snap.Orders[0].OrderID)
	assert.Nil(t, snap.TrackedOrder)
}

func TestSnapshotFollowsTrackedOrder(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.session.SignIn(context.Background(), auth.Identity{ID: "u1"}))
	require.NoError(t, fx.session.NavigateToStore(context.Background(), "chaistop"))

	fx.session.TrackOrder(&models.Order{ID: "o1", OrderID: "ORD-1", UserID: "u1", Status: models.StatusPending})

	// The feed reconciles the pinned order against fresh batches; the
	// snapshot reflects whatever copy it currently holds.
	fx.tenant.tracked = &models.Order{ID: "o1", OrderID: "ORD-1", UserID: "u1", Status: models.StatusShipped, TrackingNumber: "IN12345"}

	snap := fx.session.Snapshot()
	require.NotNil(t, snap.TrackedOrder)
	assert.Equal(t, models.StatusShipped, snap.TrackedOrder.Status)
	assert.Equal(t, "IN12345", snap.TrackedOrder.TrackingNumber)

	// Switching stores drops the pin with the rest of the feed state.
	require.NoError(t, fx.session.NavigateToStore(context.Background(), "spicemart"))
	assert.Nil(t, fx.session.Snapshot().TrackedOrder)
}

func TestSnapshotShowsAllOrdersToManagers(t *testing.T) {
	fx := newFixture(t)
	merchantLogin(t, fx, auth.Identity{ID: "s1", Email: "meera@example.com"})
	require.Equal(t, models.ViewAdmin, fx.session.View())

	fx.tenant.orders = []models.Order{
		{ID: "o1", OrderID: "ORD-1", UserID: "u1", Status: models.StatusPending},
		{ID: "o2", OrderID: "ORD-2", UserID: "u2", Status: models.StatusPaid},
	}
	assert.Len(t, fx.session.Snapshot().Orders, 2)
}

func TestGoHomeClearsStoreAndURL(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.session.SignIn(context.Background(), auth.Identity{ID: "u1"}))
	require.NoError(t, fx.session.NavigateToStore(context.Background(), "chaistop"))

	fx.session.GoHome(context.Background())

	assert.Equal(t, models.ViewLanding, fx.session.View())
	assert.Nil(t, fx.session.Store())
	assert.Equal(t, "/", fx.session.URL())
}
