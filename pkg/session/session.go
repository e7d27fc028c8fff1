// Package session derives a viewer's effective role from identity claims and
// ownership lookups, and drives the landing/customer/admin view state machine
// keyed by the store URL parameter.
package session

import (
	"context"
	"errors"

	"github.com/example/quickorder/pkg/auth"
	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/models"
	"github.com/example/quickorder/pkg/repository"
	"go.uber.org/zap"
)

var (
	// ErrLoginRequired means the requested navigation is held pending and a
	// login prompt must be shown.
	ErrLoginRequired = errors.New("session: login required")
	ErrAccessDenied  = errors.New("session: access denied")
)

// Directory is the store-side lookup surface for role resolution and
// store loading.
type Directory interface {
	GetStore(ctx context.Context, storeID string) (*models.Store, error)
	StoresByOwner(ctx context.Context, email, phone string) ([]models.Store, error)
	IsDatabaseAdmin(ctx context.Context, email, phone string) (bool, error)
}

// Preferences persists the role-intent hint between sign-ins. It biases the
// next resolution and is never an authorization input.
type Preferences interface {
	SetRolePreference(ctx context.Context, userID string, pref models.Role) error
	GetRolePreference(ctx context.Context, userID string) (models.Role, error)
	ClearRolePreference(ctx context.Context, userID string) error
}

// Feed is the live view of the active store, one synchronizer per session:
// switched on navigation, read on every snapshot.
type Feed interface {
	SetActiveStore(ctx context.Context, storeID string) error
	Products() []models.Product
	Orders() []models.Order
	OrdersForUser(userID string) []models.Order
	Track(order *models.Order)
	TrackedOrder() *models.Order
}

// LoginIntent records which door the viewer came through.
type LoginIntent string

const (
	IntentCustomer LoginIntent = "customer"
	IntentAdmin    LoginIntent = "admin"
)

// State is a read-only snapshot of the session for rendering.
type State struct {
	User         *models.User     `json:"user,omitempty"`
	View         models.View      `json:"view"`
	Store        *models.Store    `json:"store,omitempty"`
	PendingStore string           `json:"pendingStore,omitempty"`
	URL          string           `json:"url"`
	Products     []models.Product `json:"products,omitempty"`
	Orders       []models.Order   `json:"orders,omitempty"`
	TrackedOrder *models.Order    `json:"trackedOrder,omitempty"`
}

// Session is one viewer's state. It is not safe for concurrent use; the
// owning actor serializes all access through its mailbox.
type Session struct {
	admin  *config.AdminConfig
	dir    Directory
	prefs  Preferences
	feed   Feed
	logger *zap.Logger

	user         *models.User
	view         models.View
	currentStore *models.Store
	pendingStore string
	loginIntent  LoginIntent

	// history models the browser URL stack; each entry is the value of the
	// store query parameter, empty for the bare landing URL.
	history []string
	histIdx int
}

func New(admin *config.AdminConfig, dir Directory, prefs Preferences, feed Feed, logger *zap.Logger) *Session {
	return &Session{
		admin:       admin,
		dir:         dir,
		prefs:       prefs,
		feed:        feed,
		logger:      logger,
		view:        models.ViewLanding,
		loginIntent: IntentCustomer,
		history:     []string{""},
	}
}

// --- role resolution ---

func (s *Session) isRootAllowListed(email, phoneDigits string) bool {
	for _, e := range s.admin.RootEmails {
		if email != "" && e == email {
			return true
		}
	}
	for _, p := range s.admin.RootPhones {
		if phoneDigits != "" && auth.NormalizePhone(p) == phoneDigits {
			return true
		}
	}
	return false
}

// resolveUser rebuilds the effective role on a sign-in event. Run every
// time: ownership can change between sessions, so nothing here is cached.
func (s *Session) resolveUser(ctx context.Context, id auth.Identity) (*models.User, error) {
	pref, err := s.prefs.GetRolePreference(ctx, id.ID)
	if err != nil {
		s.logger.Warn("Failed to read role preference, defaulting to customer", zap.Error(err))
		pref = models.RoleCustomer
	}

	user := &models.User{
		ID:          id.ID,
		Name:        id.Name,
		Email:       id.Email,
		PhoneNumber: id.PhoneNumber,
		Role:        models.RoleCustomer,
		Avatar:      id.Avatar,
	}
	if user.Name == "" {
		user.Name = "User"
	}

	if pref == models.RoleCustomer {
		return user, nil
	}

	phoneDigits := auth.NormalizePhone(id.PhoneNumber)

	if s.isRootAllowListed(id.Email, phoneDigits) {
		user.Role = models.RoleRoot
		return user, nil
	}
	isAdmin, err := s.dir.IsDatabaseAdmin(ctx, id.Email, phoneDigits)
	if err != nil {
		s.logger.Error("Admin lookup failed", zap.Error(err))
	} else if isAdmin {
		user.Role = models.RoleRoot
		return user, nil
	}

	owned, err := s.dir.StoresByOwner(ctx, id.Email, phoneDigits)
	if err != nil {
		s.logger.Error("Ownership lookup failed", zap.Error(err))
		return user, nil
	}
	if len(owned) > 0 {
		user.Role = models.RoleSeller
		for _, st := range owned {
			user.ManagedStoreIDs = append(user.ManagedStoreIDs, st.StoreID)
		}
	}
	return user, nil
}

func (s *Session) persistPreference(ctx context.Context, pref models.Role) {
	if s.user == nil {
		return
	}
	if err := s.prefs.SetRolePreference(ctx, s.user.ID, pref); err != nil {
		s.logger.Warn("Failed to persist role preference", zap.Error(err))
	}
}

// --- sign-in / sign-out ---

// SignIn handles an identity-provider sign-in event and routes the viewer.
func (s *Session) SignIn(ctx context.Context, id auth.Identity) error {
	user, err := s.resolveUser(ctx, id)
	if err != nil {
		return err
	}
	s.user = user

	// Deferred store visit from a landing-page click: force the shopping
	// role and resume the navigation.
	if s.pendingStore != "" {
		target := s.pendingStore
		s.pendingStore = ""
		s.persistPreference(ctx, models.RoleCustomer)
		if s.user.Role != models.RoleCustomer {
			s.user.Role = models.RoleCustomer
		}
		return s.enterStoreAsCustomer(ctx, target)
	}

	if s.loginIntent == IntentCustomer {
		s.persistPreference(ctx, models.RoleCustomer)
		if s.currentStore != nil {
			s.view = models.ViewCustomer
		} else {
			s.view = models.ViewLanding
		}
		return nil
	}

	// Explicit merchant login: honor the resolved role.
	s.persistPreference(ctx, s.user.Role)
	switch s.user.Role {
	case models.RoleRoot:
		s.view = models.ViewAdmin
		return nil
	case models.RoleSeller:
		if len(s.user.ManagedStoreIDs) == 1 {
			return s.loadStore(ctx, s.user.ManagedStoreIDs[0], models.ViewAdmin, true)
		}
		// Zero stores shows the empty state, several show the selector.
		s.view = models.ViewAdmin
		return nil
	default:
		s.view = models.ViewCustomer
		return nil
	}
}

// SignOut clears the session and the demotion preference and returns to a
// bare landing URL.
func (s *Session) SignOut(ctx context.Context) {
	if s.user != nil {
		if err := s.prefs.ClearRolePreference(ctx, s.user.ID); err != nil {
			s.logger.Warn("Failed to clear role preference", zap.Error(err))
		}
	}
	s.user = nil
	s.pendingStore = ""
	s.loginIntent = IntentCustomer
	s.clearStore(ctx)
	s.pushURL("")
}

// --- navigation ---

// NavigateToStore is a click on a store listing. Root admins browsing the
// admin view manage the store; everyone else shops in it, logging in first
// if needed.
func (s *Session) NavigateToStore(ctx context.Context, storeID string) error {
	if s.user != nil && s.user.Role == models.RoleRoot && s.view == models.ViewAdmin {
		return s.loadStore(ctx, storeID, models.ViewAdmin, true)
	}

	if s.user == nil {
		s.pendingStore = storeID
		s.loginIntent = IntentCustomer
		return ErrLoginRequired
	}

	return s.enterStoreAsCustomer(ctx, storeID)
}

// enterStoreAsCustomer enforces shopping mode: an elevated viewer entering a
// store through browse/search is silently demoted and the demotion persists
// until they explicitly re-elevate.
func (s *Session) enterStoreAsCustomer(ctx context.Context, storeID string) error {
	if s.user != nil && s.user.Role != models.RoleCustomer {
		s.user.Role = models.RoleCustomer
		s.user.ManagedStoreIDs = nil
		s.persistPreference(ctx, models.RoleCustomer)
	}
	s.loginIntent = IntentCustomer
	return s.loadStore(ctx, storeID, models.ViewCustomer, true)
}

// NavigateToAdmin is the merchant-login entry point from the landing page.
func (s *Session) NavigateToAdmin(ctx context.Context) error {
	if s.user != nil && s.user.Role == models.RoleRoot {
		s.view = models.ViewAdmin
		return nil
	}
	if s.user != nil && s.user.Role == models.RoleSeller {
		if len(s.user.ManagedStoreIDs) == 1 {
			return s.loadStore(ctx, s.user.ManagedStoreIDs[0], models.ViewAdmin, true)
		}
		s.view = models.ViewAdmin
		return nil
	}
	s.loginIntent = IntentAdmin
	return ErrLoginRequired
}

// GoHome is the logo click: clear store context and the URL parameter.
func (s *Session) GoHome(ctx context.Context) {
	s.pendingStore = ""
	s.clearStore(ctx)
	s.view = models.ViewLanding
	s.pushURL("")
}

// Open resolves a deep link on initial load.
func (s *Session) Open(ctx context.Context, storeID string) error {
	s.history = []string{storeID}
	s.histIdx = 0
	if storeID == "" {
		return nil
	}
	return s.loadStore(ctx, storeID, models.ViewCustomer, false)
}

// Back re-derives the view from the previous URL state, the browser
// back-button path.
func (s *Session) Back(ctx context.Context) error {
	if s.histIdx > 0 {
		s.histIdx--
	}
	return s.applyURL(ctx)
}

// Forward is the matching forward-button path.
func (s *Session) Forward(ctx context.Context) error {
	if s.histIdx < len(s.history)-1 {
		s.histIdx++
	}
	return s.applyURL(ctx)
}

// applyURL makes the current URL parameter the single source of truth.
func (s *Session) applyURL(ctx context.Context) error {
	param := s.history[s.histIdx]
	if param == "" {
		if s.view != models.ViewLanding {
			s.clearStore(ctx)
			s.view = models.ViewLanding
		}
		return nil
	}
	if s.currentStore != nil && s.currentStore.StoreID == param {
		return nil
	}
	return s.loadStore(ctx, param, models.ViewCustomer, false)
}

// loadStore resolves a store and enters the target view. A store that no
// longer resolves falls back to landing; that is a normal outcome, not a
// failure.
func (s *Session) loadStore(ctx context.Context, storeID string, target models.View, push bool) error {
	if push {
		s.pushURL(storeID)
	}

	store, err := s.dir.GetStore(ctx, storeID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("Failed to load store", zap.String("store_id", storeID), zap.Error(err))
		}
		s.clearStore(ctx)
		s.view = models.ViewLanding
		return nil
	}

	s.currentStore = store
	s.view = target
	if err := s.feed.SetActiveStore(ctx, store.StoreID); err != nil {
		s.logger.Error("Failed to activate store feeds", zap.String("store_id", storeID), zap.Error(err))
	}
	return nil
}

func (s *Session) clearStore(ctx context.Context) {
	s.currentStore = nil
	if err := s.feed.SetActiveStore(ctx, ""); err != nil {
		s.logger.Warn("Failed to clear store feeds", zap.Error(err))
	}
}

// TrackOrder pins the order the viewer is following; the feed swaps in the
// fresh copy as new batches arrive.
func (s *Session) TrackOrder(order *models.Order) {
	s.feed.Track(order)
}

func (s *Session) pushURL(param string) {
	s.history = append(s.history[:s.histIdx+1], param)
	s.histIdx = len(s.history) - 1
}

// --- view access ---

// Access is the outcome of asking for a view in the current role.
type Access int

const (
	AccessGranted Access = iota
	AccessLoginRequired
	AccessDenied
)

// guest is the role key for an unauthenticated viewer.
const guest = models.Role("guest")

// viewAccess is the {role, view} dispatch table. Landing and customer views
// are open to everyone; admin needs an elevated role.
var viewAccess = map[models.Role]map[models.View]Access{
	guest: {
		models.ViewLanding:  AccessGranted,
		models.ViewCustomer: AccessGranted,
		models.ViewAdmin:    AccessLoginRequired,
	},
	models.RoleCustomer: {
		models.ViewLanding:  AccessGranted,
		models.ViewCustomer: AccessGranted,
		models.ViewAdmin:    AccessLoginRequired,
	},
	models.RoleSeller: {
		models.ViewLanding:  AccessGranted,
		models.ViewCustomer: AccessGranted,
		models.ViewAdmin:    AccessGranted,
	},
	models.RoleRoot: {
		models.ViewLanding:  AccessGranted,
		models.ViewCustomer: AccessGranted,
		models.ViewAdmin:    AccessGranted,
	},
}

// AccessTo reports whether the current viewer may enter a view. A seller is
// additionally confined to their own stores' admin dashboards.
func (s *Session) AccessTo(view models.View) Access {
	role := guest
	if s.user != nil {
		role = s.user.Role
	}
	access := viewAccess[role][view]
	if access != AccessGranted {
		return access
	}
	if view == models.ViewAdmin && role == models.RoleSeller &&
		s.currentStore != nil && !s.user.ManagesStore(s.currentStore.StoreID) {
		return AccessDenied
	}
	return access
}

// --- snapshot ---

// URL renders the current browser location.
func (s *Session) URL() string {
	if param := s.history[s.histIdx]; param != "" {
		return "/?store=" + param
	}
	return "/"
}

func (s *Session) Snapshot() State {
	st := State{
		View:         s.view,
		PendingStore: s.pendingStore,
		URL:          s.URL(),
	}
	if s.user != nil {
		u := *s.user
		st.User = &u
	}
	if s.currentStore != nil {
		store := *s.currentStore
		st.Store = &store
	}

	// The live feed is part of the rendered state: the catalog for anyone,
	// orders scoped to the viewer unless they are managing the store.
	st.Products = s.feed.Products()
	if s.user != nil {
		if s.view == models.ViewAdmin {
			st.Orders = s.feed.Orders()
		} else {
			st.Orders = s.feed.OrdersForUser(s.user.ID)
		}
	}
	st.TrackedOrder = s.feed.TrackedOrder()
	return st
}

// User returns the signed-in user, or nil.
func (s *Session) User() *models.User { return s.user }

// Store returns the loaded store, or nil.
func (s *Session) Store() *models.Store { return s.currentStore }

// View returns the current view.
func (s *Session) View() models.View { return s.view }
