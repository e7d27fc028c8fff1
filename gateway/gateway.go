// Package gateway is the HTTP surface of the storefront: store and catalog
// management, order placement and status transitions, UPI payment links and
// the session event endpoints.
package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/example/quickorder/pkg/auth"
	"github.com/example/quickorder/pkg/config"
	"github.com/example/quickorder/pkg/lifecycle"
	"github.com/example/quickorder/pkg/models"
	"github.com/example/quickorder/pkg/repository"
	"github.com/example/quickorder/pkg/session"
	"github.com/example/quickorder/pkg/upi"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const identityKey = "identity"

type Gateway struct {
	config   *config.Config
	logger   *zap.Logger
	router   *gin.Engine
	repo     *repository.MongoRepository
	cache    *repository.RedisRepository
	tokens   *auth.TokenService
	sessions *session.Manager
}

func NewGateway(cfg *config.Config, logger *zap.Logger, repo *repository.MongoRepository, cache *repository.RedisRepository, tokens *auth.TokenService, sessions *session.Manager) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggerMiddleware(logger))

	return &Gateway{
		config:   cfg,
		logger:   logger,
		router:   router,
		repo:     repo,
		cache:    cache,
		tokens:   tokens,
		sessions: sessions,
	}
}

func (g *Gateway) SetupRoutes() {
	// Health check
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 routes
	v1 := g.router.Group("/api/v1")
	v1.Use(g.identityMiddleware())
	{
		stores := v1.Group("/stores")
		{
			stores.GET("", g.listStores)
			stores.POST("", g.requireRoot, g.createStore)
			stores.GET("/suggest", g.requireRoot, g.suggestStoreID)
			stores.GET("/:storeId", g.getStore)
			stores.PUT("/:storeId/settings", g.requireManage, g.updateStoreSettings)
			stores.DELETE("/:storeId", g.requireRoot, g.deleteStore)

			stores.GET("/:storeId/products", g.listProducts)
			stores.POST("/:storeId/products", g.requireManage, g.createProduct)
			stores.PUT("/:storeId/products/:productId", g.requireManage, g.updateProduct)
			stores.DELETE("/:storeId/products/:productId", g.requireManage, g.deleteProduct)

			stores.GET("/:storeId/orders", g.requireManage, g.listOrders)
			stores.GET("/:storeId/orders/mine", g.requireAuth, g.listMyOrders)
			stores.POST("/:storeId/orders", g.requireAuth, g.placeOrder)
			stores.GET("/:storeId/orders/:orderId", g.requireAuth, g.getOrder)
			stores.POST("/:storeId/orders/:orderId/status", g.requireAuth, g.advanceOrder)
			stores.DELETE("/:storeId/orders/:orderId", g.requireManage, g.deleteOrder)
			stores.GET("/:storeId/orders/:orderId/payment", g.paymentLinks)
		}

		admins := v1.Group("/admins", g.requireRoot)
		{
			admins.GET("", g.listAdmins)
			admins.POST("", g.addAdmin)
			admins.DELETE("/:adminId", g.removeAdmin)
		}

		sessions := v1.Group("/session")
		{
			sessions.GET("", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.GetState{}, nil
			}))
			sessions.POST("/login", g.sessionLogin)
			sessions.POST("/logout", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.SignOut{}, nil
			}))
			sessions.POST("/navigate", g.sessionEvent(storeEvent(func(storeID string) interface{} {
				return &session.NavigateStore{StoreID: storeID}
			})))
			sessions.POST("/open", g.sessionEvent(storeEvent(func(storeID string) interface{} {
				return &session.OpenURL{StoreID: storeID}
			})))
			sessions.POST("/admin", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.NavigateAdmin{}, nil
			}))
			sessions.POST("/home", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.GoHome{}, nil
			}))
			sessions.POST("/back", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.Back{}, nil
			}))
			sessions.POST("/forward", g.sessionEvent(func(*gin.Context) (interface{}, error) {
				return &session.Forward{}, nil
			}))
		}
	}

	// Swagger
	g.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
}

func (g *Gateway) Start() error {
	addr := fmt.Sprintf("%s:%d", g.config.Gateway.Host, g.config.Gateway.Port)
	g.logger.Info("Gateway starting", zap.String("address", addr))
	return g.router.Run(addr)
}

// --- middleware ---

// identityMiddleware parses an optional Bearer ID token. Invalid tokens are
// rejected outright rather than treated as anonymous.
func (g *Gateway) identityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		tokenString := strings.TrimPrefix(header, "Bearer ")
		id, err := g.tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func identityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

func (g *Gateway) requireAuth(c *gin.Context) {
	if _, ok := identityFrom(c); !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
}

// isRoot applies the fixed allow-list first, then the admins collection.
func (g *Gateway) isRoot(c *gin.Context, id auth.Identity) bool {
	phoneDigits := auth.NormalizePhone(id.PhoneNumber)
	for _, e := range g.config.Admin.RootEmails {
		if id.Email != "" && e == id.Email {
			return true
		}
	}
	for _, p := range g.config.Admin.RootPhones {
		if phoneDigits != "" && auth.NormalizePhone(p) == phoneDigits {
			return true
		}
	}
	isAdmin, err := g.repo.IsDatabaseAdmin(c.Request.Context(), id.Email, phoneDigits)
	if err != nil {
		g.logger.Error("Admin lookup failed", zap.Error(err))
		return false
	}
	return isAdmin
}

func (g *Gateway) requireRoot(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if !g.isRoot(c, id) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "root access required"})
	}
}

// requireManage grants store management to root admins and the store's owner.
func (g *Gateway) requireManage(c *gin.Context) {
	id, ok := identityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}
	if g.isRoot(c, id) {
		return
	}

	store, err := g.loadStore(c, c.Param("storeId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	if ownsStore(id, store) {
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a manager of this store"})
}

func ownsStore(id auth.Identity, store *models.Store) bool {
	if id.Email != "" && id.Email == store.OwnerEmail {
		return true
	}
	digits := auth.NormalizePhone(id.PhoneNumber)
	return digits != "" && digits == auth.NormalizePhone(store.OwnerPhone)
}

// --- stores ---

// loadStore reads through the short-lived store cache.
func (g *Gateway) loadStore(c *gin.Context, storeID string) (*models.Store, error) {
	ctx := c.Request.Context()
	if store, err := g.cache.GetStoreCache(ctx, storeID); err == nil {
		return store, nil
	}
	store, err := g.repo.GetStore(ctx, storeID)
	if err != nil {
		return nil, err
	}
	if err := g.cache.CacheStore(ctx, store); err != nil {
		g.logger.Warn("Failed to cache store", zap.Error(err))
	}
	return store, nil
}

func (g *Gateway) invalidateStore(c *gin.Context, storeID string) {
	if err := g.cache.InvalidateStoreCache(c.Request.Context(), storeID); err != nil {
		g.logger.Warn("Failed to invalidate store cache", zap.Error(err))
	}
}

func (g *Gateway) listStores(c *gin.Context) {
	stores, err := g.repo.ListStores(c.Request.Context())
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stores": stores, "total": len(stores)})
}

func (g *Gateway) getStore(c *gin.Context) {
	store, err := g.loadStore(c, c.Param("storeId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, store)
}

type createStoreRequest struct {
	StoreID      string `json:"storeId" binding:"required"`
	Name         string `json:"name" binding:"required"`
	OwnerEmail   string `json:"ownerEmail"`
	OwnerPhone   string `json:"ownerPhone"`
	VPA          string `json:"vpa" binding:"required"`
	MerchantName string `json:"merchantName" binding:"required"`
}

func (g *Gateway) createStore(c *gin.Context) {
	var req createStoreRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store := &models.Store{
		StoreID:      req.StoreID,
		Name:         req.Name,
		OwnerEmail:   req.OwnerEmail,
		OwnerPhone:   req.OwnerPhone,
		VPA:          req.VPA,
		MerchantName: req.MerchantName,
	}
	if err := g.repo.CreateStore(c.Request.Context(), store); err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, store)
}

// suggestStoreID proposes a free slug for a new store's display name.
func (g *Gateway) suggestStoreID(c *gin.Context) {
	name := c.Query("name")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "name is required"})
		return
	}
	suggestion, err := g.repo.SuggestStoreID(c.Request.Context(), name)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"storeId": suggestion})
}

type storeSettingsRequest struct {
	VPA          string `json:"vpa" binding:"required"`
	MerchantName string `json:"merchantName" binding:"required"`
	OwnerEmail   string `json:"ownerEmail"`
	OwnerPhone   string `json:"ownerPhone"`
	IsActive     *bool  `json:"isActive" binding:"required"`
}

func (g *Gateway) updateStoreSettings(c *gin.Context) {
	storeID := c.Param("storeId")
	var req storeSettingsRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings := &models.Store{
		VPA:          req.VPA,
		MerchantName: req.MerchantName,
		OwnerEmail:   req.OwnerEmail,
		OwnerPhone:   req.OwnerPhone,
		IsActive:     *req.IsActive,
	}
	if err := g.repo.UpdateStoreSettings(c.Request.Context(), storeID, settings); err != nil {
		g.abortWithError(c, err)
		return
	}
	g.invalidateStore(c, storeID)
	c.JSON(http.StatusOK, gin.H{"message": "Store settings updated"})
}

func (g *Gateway) deleteStore(c *gin.Context) {
	storeID := c.Param("storeId")
	if err := g.repo.DeleteStore(c.Request.Context(), storeID); err != nil {
		g.abortWithError(c, err)
		return
	}
	g.invalidateStore(c, storeID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- products ---

func (g *Gateway) listProducts(c *gin.Context) {
	products, err := g.repo.ProductsByStore(c.Request.Context(), c.Param("storeId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

type productRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	// Pointer so a free item's explicit zero survives required validation.
	Price    *float64 `json:"price" binding:"required,gte=0"`
	Unit     string   `json:"unit" binding:"required"`
	ImageURL string   `json:"imageUrl"`
}

func (g *Gateway) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := &models.Product{
		StoreID:     c.Param("storeId"),
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Unit:        req.Unit,
		ImageURL:    req.ImageURL,
	}
	id, err := g.repo.CreateProduct(c.Request.Context(), product)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (g *Gateway) updateProduct(c *gin.Context) {
	var req productRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	product := &models.Product{
		Name:        req.Name,
		Description: req.Description,
		Price:       *req.Price,
		Unit:        req.Unit,
		ImageURL:    req.ImageURL,
	}
	err := g.repo.UpdateProduct(c.Request.Context(), c.Param("storeId"), c.Param("productId"), product)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product updated"})
}

func (g *Gateway) deleteProduct(c *gin.Context) {
	err := g.repo.DeleteProduct(c.Request.Context(), c.Param("storeId"), c.Param("productId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- orders ---

func (g *Gateway) listOrders(c *gin.Context) {
	orders, err := g.repo.OrdersByStore(c.Request.Context(), c.Param("storeId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders, "total": len(orders)})
}

func (g *Gateway) listMyOrders(c *gin.Context) {
	id, _ := identityFrom(c)
	orders, err := g.repo.OrdersByStore(c.Request.Context(), c.Param("storeId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	mine := make([]models.Order, 0)
	for _, o := range orders {
		if o.UserID == id.ID {
			mine = append(mine, o)
		}
	}
	c.JSON(http.StatusOK, gin.H{"orders": mine, "total": len(mine)})
}

type orderItemRequest struct {
	ProductID string `json:"productId" binding:"required"`
	Quantity  int    `json:"quantity" binding:"required,gt=0"`
}

type placeOrderRequest struct {
	Customer models.CustomerDetails `json:"customer" binding:"required"`
	Items    []orderItemRequest     `json:"items" binding:"required"`
}

// placeOrder snapshots the referenced products into the order so later
// catalog edits never change what was sold.
func (g *Gateway) placeOrder(c *gin.Context) {
	id, _ := identityFrom(c)
	storeID := c.Param("storeId")

	var req placeOrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	store, err := g.loadStore(c, storeID)
	if err != nil {
		g.abortWithError(c, err)
		return
	}

	catalog, err := g.repo.ProductsByStore(c.Request.Context(), storeID)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	byID := make(map[string]models.Product, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}

	items := make([]models.ProductOrder, 0, len(req.Items))
	for _, item := range req.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("unknown product %s", item.ProductID)})
			return
		}
		items = append(items, models.ProductOrder{Product: product, Quantity: item.Quantity})
	}

	order, err := lifecycle.NewOrder(store, id.ID, req.Customer, items, time.Now())
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	if _, err := g.repo.CreateOrder(c.Request.Context(), order); err != nil {
		g.abortWithError(c, err)
		return
	}
	g.trackInSession(c, order)
	c.JSON(http.StatusCreated, order)
}

// trackInSession pins the order in the caller's session feed so subsequent
// state snapshots follow its status in real time. Best effort; the order
// itself is already durable.
func (g *Gateway) trackInSession(c *gin.Context, order *models.Order) {
	if _, err := g.sessions.Dispatch(g.sessionID(c), &session.TrackOrder{Order: order}); err != nil {
		g.logger.Warn("Failed to track order in session",
			zap.String("order_id", order.OrderID), zap.Error(err))
	}
}

func (g *Gateway) getOrder(c *gin.Context) {
	id, _ := identityFrom(c)
	order, store, err := g.loadOrder(c)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	if order.UserID != id.ID && !g.isRoot(c, id) && !ownsStore(id, store) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your order"})
		return
	}
	if order.UserID == id.ID {
		g.trackInSession(c, order)
	}
	c.JSON(http.StatusOK, order)
}

func (g *Gateway) loadOrder(c *gin.Context) (*models.Order, *models.Store, error) {
	storeID := c.Param("storeId")
	order, err := g.repo.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		return nil, nil, err
	}
	if order.StoreID != storeID {
		return nil, nil, repository.ErrNotFound
	}
	store, err := g.loadStore(c, storeID)
	if err != nil {
		return nil, nil, err
	}
	return order, store, nil
}

type advanceOrderRequest struct {
	Status         models.OrderStatus `json:"status" binding:"required"`
	TrackingNumber string             `json:"trackingNumber"`
	PaymentID      string             `json:"paymentId"`
}

// advanceOrder runs a status transition. The acting role is derived from the
// caller, never from the request body: managers act as the merchant, and a
// customer may only touch their own order.
func (g *Gateway) advanceOrder(c *gin.Context) {
	id, _ := identityFrom(c)

	var req advanceOrderRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, store, err := g.loadOrder(c)
	if err != nil {
		g.abortWithError(c, err)
		return
	}

	actor := lifecycle.ActorCustomer
	if g.isRoot(c, id) || ownsStore(id, store) {
		actor = lifecycle.ActorMerchant
	} else if order.UserID != id.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your order"})
		return
	}

	update, err := lifecycle.Advance(order, req.Status, actor, lifecycle.Options{
		TrackingNumber: req.TrackingNumber,
		PaymentID:      req.PaymentID,
	})
	if err != nil {
		g.abortWithError(c, err)
		return
	}

	if err := g.repo.ApplyOrderUpdate(c.Request.Context(), store.StoreID, order.ID, update.Fields); err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId": order.OrderID,
		"status":  update.Status,
	})
}

func (g *Gateway) deleteOrder(c *gin.Context) {
	err := g.repo.DeleteOrder(c.Request.Context(), c.Param("storeId"), c.Param("orderId"))
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// paymentLinks returns the deep link for the payer's detected UPI app plus
// the generic intent link used for the QR fallback.
func (g *Gateway) paymentLinks(c *gin.Context) {
	order, store, err := g.loadOrder(c)
	if err != nil {
		g.abortWithError(c, err)
		return
	}

	app := upi.DetectApp(c.Query("vpa"))
	c.JSON(http.StatusOK, gin.H{
		"app":     app,
		"link":    upi.LinkFor(app, order.TotalAmount, order.OrderID, store.VPA, store.MerchantName),
		"generic": upi.GenericLink(upi.Intent{
			VPA:             store.VPA,
			PayeeName:       store.MerchantName,
			Amount:          order.TotalAmount,
			TransactionNote: "Order #" + order.OrderID,
			TransactionRef:  order.OrderID,
		}),
	})
}

// --- admins ---

func (g *Gateway) listAdmins(c *gin.Context) {
	admins, err := g.repo.ListAdmins(c.Request.Context())
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"admins": admins, "total": len(admins)})
}

type addAdminRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (g *Gateway) addAdmin(c *gin.Context) {
	var req addAdminRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Email == "" && req.Phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email or phone is required"})
		return
	}

	admin := &models.Admin{
		Name:  req.Name,
		Email: req.Email,
		Phone: auth.NormalizePhone(req.Phone),
	}
	id, err := g.repo.AddAdmin(c.Request.Context(), admin)
	if err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

func (g *Gateway) removeAdmin(c *gin.Context) {
	if err := g.repo.RemoveAdmin(c.Request.Context(), c.Param("adminId")); err != nil {
		g.abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// --- session events ---

// sessionID reads the client session handle, assigning one on first contact.
// The handle is echoed back so the client can persist it.
func (g *Gateway) sessionID(c *gin.Context) string {
	id := c.GetHeader("X-Session-ID")
	if id == "" {
		id = uuid.NewString()
	}
	c.Header("X-Session-ID", id)
	return id
}

func (g *Gateway) dispatchSession(c *gin.Context, msg interface{}) {
	resp, err := g.sessions.Dispatch(g.sessionID(c), msg)
	if err != nil {
		g.logger.Error("Session dispatch failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session unavailable"})
		return
	}
	if resp.Err != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": resp.Err, "state": resp.State})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":         resp.State,
		"loginRequired": resp.LoginRequired,
	})
}

func (g *Gateway) sessionEvent(build func(*gin.Context) (interface{}, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		msg, err := build(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		g.dispatchSession(c, msg)
	}
}

func storeEvent(build func(storeID string) interface{}) func(*gin.Context) (interface{}, error) {
	return func(c *gin.Context) (interface{}, error) {
		var req struct {
			StoreID string `json:"storeId"`
		}
		if err := c.BindJSON(&req); err != nil {
			return nil, err
		}
		return build(req.StoreID), nil
	}
}

func (g *Gateway) sessionLogin(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := g.tokens.Verify(req.Token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	g.dispatchSession(c, &session.SignIn{Identity: id})
}

// --- errors ---

// abortWithError maps domain errors onto HTTP statuses.
func (g *Gateway) abortWithError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, repository.ErrDuplicateStore):
		c.JSON(http.StatusConflict, gin.H{"error": "store id already taken"})
	case errors.Is(err, repository.ErrBadStoreID),
		errors.Is(err, lifecycle.ErrEmptyCart),
		errors.Is(err, lifecycle.ErrCustomerDetails),
		errors.Is(err, lifecycle.ErrTrackingRequired),
		errors.Is(err, lifecycle.ErrNotDurable):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, lifecycle.ErrStorePaused):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, lifecycle.ErrActorNotAllowed):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		g.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend unavailable"})
	}
}

func loggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
