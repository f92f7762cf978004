package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

// Config carries the HTTP façade settings.
type Config struct {
	AllowedOrigins []string
	SigningKey     string
}

// Server exposes the point ledger, reservation engine, order state machine,
// and voucher lifecycle over HTTP.
type Server struct {
	logger   *zap.Logger
	cfg      Config
	points   *points.Service
	stock    *inventory.Service
	orders   *orders.Service
	vouchers *vouchers.Service
}

// NewServer wires a Server.
func NewServer(logger *zap.Logger, cfg Config, pointService *points.Service, stockService *inventory.Service, orderService *orders.Service, voucherService *vouchers.Service) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		logger:   logger,
		cfg:      cfg,
		points:   pointService,
		stock:    stockService,
		orders:   orderService,
		vouchers: voucherService,
	}
}

// Router builds the gin engine with all routes attached.
func (server *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(server.requestLogger())
	// cors.New panics on an empty origin list; with no configured origins the
	// API serves same-origin callers only.
	if len(server.cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     server.cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept", "Authorization"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api/v1")
	api.Use(BearerAuth([]byte(server.cfg.SigningKey)))

	api.GET("/points/balance", server.handleOwnBalance)
	api.GET("/points/entries", server.handleOwnEntries)

	api.POST("/orders", server.handleCreateOrder)
	api.GET("/orders", server.handleListOrders)
	api.GET("/orders/:id", server.handleGetOrder)
	api.POST("/orders/:id/cancel", server.handleCancelOrder)
	api.POST("/orders/:id/receive", server.handleReceiveOrder)

	api.POST("/vouchers", server.handleIssueVoucher)
	api.GET("/vouchers", server.handleListVouchers)
	api.GET("/vouchers/:id", server.handleGetVoucher)
	api.POST("/vouchers/:id/register", server.handleRegisterVoucher)
	api.POST("/vouchers/:id/cancel-request", server.handleVoucherCancelRequest)

	tailor := api.Group("", RequireRole(RoleTailor, RoleStaff))
	tailor.POST("/vouchers/:id/use", server.handleUseVoucher)

	staff := api.Group("", RequireRole(RoleStaff))
	staff.GET("/members/:id/points/balance", server.handleMemberBalance)
	staff.GET("/members/:id/points/entries", server.handleMemberEntries)
	staff.POST("/points/grant", server.handleGrant)
	staff.POST("/points/grants", server.handleGrantBulk)

	staff.GET("/stocks", server.handleListStocks)
	staff.GET("/stocks/summary", server.handleStockSummary)
	staff.GET("/stocks/movements", server.handleListMovements)
	staff.POST("/stocks/receive", server.handleReceiveStock)
	staff.POST("/stocks/adjust", server.handleAdjustStock)

	staff.POST("/orders/:id/process", server.handleProcessOrder)
	staff.POST("/orders/:id/ship", server.handleShipOrder)
	staff.POST("/orders/:id/deliver", server.handleDeliverOrder)
	staff.POST("/orders/:id/force-cancel", server.handleForceCancelOrder)
	staff.POST("/orders/:id/refund", server.handleRefundOrder)

	staff.POST("/vouchers/from-order", server.handleIssueOrderVoucher)
	staff.POST("/vouchers/:id/cancel-resolve", server.handleVoucherCancelResolve)

	return router
}

func (server *Server) requestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		server.logger.Info("request",
			zap.String("method", ctx.Request.Method),
			zap.String("path", ctx.FullPath()),
			zap.Int("status", ctx.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func pathID(ctx *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || value == 0 {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_request", "invalid identifier"))
		return 0, false
	}
	return uint(value), true
}
