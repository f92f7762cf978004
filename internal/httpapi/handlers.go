package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

type grantRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Amount int64  `json:"amount" binding:"required"`
	Memo   string `json:"memo"`
}

type grantBulkRequest struct {
	UserIDs []uint `json:"user_ids" binding:"required"`
	Amount  int64  `json:"amount" binding:"required"`
	Memo    string `json:"memo"`
}

type stockRequest struct {
	WarehouseID uint   `json:"warehouse_id" binding:"required"`
	ItemID      uint   `json:"item_id" binding:"required"`
	VariantID   *uint  `json:"variant_id"`
	Quantity    int    `json:"quantity" binding:"required"`
	Kind        string `json:"kind"`
	Reason      string `json:"reason"`
}

type orderLinePayload struct {
	ItemID     uint   `json:"item_id" binding:"required"`
	VariantID  *uint  `json:"variant_id"`
	Quantity   int    `json:"quantity" binding:"required"`
	UnitPrice  int64  `json:"unit_price"`
	Settlement string `json:"settlement" binding:"required"`
}

type deliveryPayload struct {
	Mode           string `json:"mode"`
	DestinationID  *uint  `json:"destination_id"`
	RecipientName  string `json:"recipient_name"`
	RecipientPhone string `json:"recipient_phone"`
	Address        string `json:"address"`
	Note           string `json:"note"`
}

type createOrderRequest struct {
	UserID      uint               `json:"user_id"`
	WarehouseID uint               `json:"warehouse_id" binding:"required"`
	Channel     string             `json:"channel" binding:"required"`
	Lines       []orderLinePayload `json:"lines" binding:"required"`
	Delivery    *deliveryPayload   `json:"delivery"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type shipRequest struct {
	TrackingNumber string `json:"tracking_number"`
}

type refundRequest struct {
	Lines []struct {
		LineID uint   `json:"line_id" binding:"required"`
		Reason string `json:"reason"`
	} `json:"lines" binding:"required"`
}

type issueVoucherRequest struct {
	Amount int64  `json:"amount" binding:"required"`
	Memo   string `json:"memo"`
}

type orderVoucherRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
	LineID  uint `json:"line_id" binding:"required"`
}

type registerVoucherRequest struct {
	TailorShopID uint   `json:"tailor_shop_id" binding:"required"`
	Details      string `json:"details"`
}

type resolveCancelRequest struct {
	Approve bool `json:"approve"`
}

func (server *Server) handleOwnBalance(ctx *gin.Context) {
	claims := getClaims(ctx)
	balance, err := server.points.Balance(ctx.Request.Context(), claims.UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (server *Server) handleOwnEntries(ctx *gin.Context) {
	server.respondEntries(ctx, getClaims(ctx).UserID)
}

func (server *Server) handleMemberBalance(ctx *gin.Context) {
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	balance, err := server.points.Balance(ctx.Request.Context(), userID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"balance": balance})
}

func (server *Server) handleMemberEntries(ctx *gin.Context) {
	userID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	server.respondEntries(ctx, userID)
}

func (server *Server) respondEntries(ctx *gin.Context, userID uint) {
	filter := points.EntryFilter{
		FromUnixUTC: int64(queryInt(ctx, "from")),
		ToUnixUTC:   int64(queryInt(ctx, "to")),
		Page:        queryInt(ctx, "page"),
		PageSize:    queryInt(ctx, "page_size"),
	}
	if raw := ctx.Query("kind"); raw != "" {
		kind, err := points.ParseKind(raw)
		if err != nil {
			server.respondError(ctx, err)
			return
		}
		filter.Kind = &kind
	}
	entries, total, err := server.points.ListEntries(ctx.Request.Context(), userID, filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entries": entries, "total": total})
}

func (server *Server) handleGrant(ctx *gin.Context) {
	var request grantRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	entry, err := server.points.Grant(ctx.Request.Context(), request.UserID, points.Amount(request.Amount), request.Memo)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"entry": entry})
}

func (server *Server) handleGrantBulk(ctx *gin.Context) {
	var request grantBulkRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	granted, failures := server.points.GrantBulk(ctx.Request.Context(), request.UserIDs, points.Amount(request.Amount), request.Memo)
	failed := make([]gin.H, 0, len(failures))
	for _, failure := range failures {
		failed = append(failed, gin.H{"user_id": failure.UserID, "error": failure.Err.Error()})
	}
	ctx.JSON(http.StatusOK, gin.H{"granted": granted, "failures": failed})
}

func (server *Server) handleListStocks(ctx *gin.Context) {
	filter := inventory.StockFilter{
		WarehouseID: queryUint(ctx, "warehouse_id"),
		ItemID:      queryUint(ctx, "item_id"),
		Page:        queryInt(ctx, "page"),
		PageSize:    queryInt(ctx, "page_size"),
	}
	stocks, total, err := server.stock.ListStocks(ctx.Request.Context(), filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"stocks": stocks, "total": total})
}

func (server *Server) handleStockSummary(ctx *gin.Context) {
	summary, err := server.stock.Summarize(ctx.Request.Context(), queryUint(ctx, "warehouse_id"))
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"summary": summary})
}

func (server *Server) handleListMovements(ctx *gin.Context) {
	filter := inventory.MovementFilter{
		StockID:     queryUint(ctx, "stock_id"),
		WarehouseID: queryUint(ctx, "warehouse_id"),
		OrderID:     queryUint(ctx, "order_id"),
		Page:        queryInt(ctx, "page"),
		PageSize:    queryInt(ctx, "page_size"),
	}
	movements, total, err := server.stock.ListMovements(ctx.Request.Context(), filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"movements": movements, "total": total})
}

func (server *Server) handleReceiveStock(ctx *gin.Context) {
	var request stockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	key := inventory.StockKey{WarehouseID: request.WarehouseID, ItemID: request.ItemID, VariantID: request.VariantID}
	stock, movement, err := server.stock.Receive(ctx.Request.Context(), key, request.Quantity, getClaims(ctx).UserID, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"stock": stock, "movement": movement})
}

func (server *Server) handleAdjustStock(ctx *gin.Context) {
	var request stockRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	kind, err := inventory.ParseMovementKind(request.Kind)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	key := inventory.StockKey{WarehouseID: request.WarehouseID, ItemID: request.ItemID, VariantID: request.VariantID}
	stock, movement, err := server.stock.Adjust(ctx.Request.Context(), key, kind, request.Quantity, getClaims(ctx).UserID, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"stock": stock, "movement": movement})
}

func (server *Server) handleCreateOrder(ctx *gin.Context) {
	var request createOrderRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	claims := getClaims(ctx)

	// Members order for themselves; staff may key in sales for any member.
	userID := claims.UserID
	channel := orders.Channel(request.Channel)
	if claims.Role == RoleStaff && request.UserID != 0 {
		userID = request.UserID
	}
	if channel == orders.ChannelOffline && claims.Role != RoleStaff {
		ctx.JSON(http.StatusForbidden, errorResponse("forbidden", "offline sales are staff only"))
		return
	}

	createRequest := orders.CreateRequest{
		UserID:      userID,
		WarehouseID: request.WarehouseID,
		Channel:     channel,
		ActorID:     claims.UserID,
	}
	for _, line := range request.Lines {
		createRequest.Lines = append(createRequest.Lines, orders.LineRequest{
			ItemID:     line.ItemID,
			VariantID:  line.VariantID,
			Quantity:   line.Quantity,
			UnitPrice:  points.Amount(line.UnitPrice),
			Settlement: orders.Settlement(line.Settlement),
		})
	}
	if request.Delivery != nil {
		createRequest.Delivery = &orders.DeliveryRequest{
			Mode:           orders.DeliveryMode(request.Delivery.Mode),
			DestinationID:  request.Delivery.DestinationID,
			RecipientName:  request.Delivery.RecipientName,
			RecipientPhone: request.Delivery.RecipientPhone,
			Address:        request.Delivery.Address,
			Note:           request.Delivery.Note,
		}
	}

	order, err := server.orders.Create(ctx.Request.Context(), createRequest)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"order": order})
}

func (server *Server) handleListOrders(ctx *gin.Context) {
	claims := getClaims(ctx)
	filter := orders.Filter{
		WarehouseID: queryUint(ctx, "warehouse_id"),
		Page:        queryInt(ctx, "page"),
		PageSize:    queryInt(ctx, "page_size"),
	}
	if raw := ctx.Query("status"); raw != "" {
		status := orders.Status(raw)
		filter.Status = &status
	}
	filter.UserID = scopeFor(claims)
	if filter.UserID == nil {
		filter.UserID = queryUint(ctx, "user_id")
	}
	result, total, err := server.orders.List(ctx.Request.Context(), filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"orders": result, "total": total})
}

func (server *Server) handleGetOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var order orders.Order
	var err error
	if owner := scopeFor(getClaims(ctx)); owner == nil {
		order, err = server.orders.Get(ctx.Request.Context(), orderID)
	} else {
		order, err = server.orders.GetForUser(ctx.Request.Context(), orderID, *owner)
	}
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleCancelOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request reasonRequest
	_ = ctx.ShouldBindJSON(&request)
	order, err := server.orders.Cancel(ctx.Request.Context(), orderID, getClaims(ctx).UserID, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleReceiveOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	order, err := server.orders.Receive(ctx.Request.Context(), orderID, getClaims(ctx).UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleProcessOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	order, err := server.orders.StartProcessing(ctx.Request.Context(), orderID, getClaims(ctx).UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleShipOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request shipRequest
	_ = ctx.ShouldBindJSON(&request)
	order, err := server.orders.MarkShipped(ctx.Request.Context(), orderID, getClaims(ctx).UserID, request.TrackingNumber)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleDeliverOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	order, err := server.orders.MarkDelivered(ctx.Request.Context(), orderID, getClaims(ctx).UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleForceCancelOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request reasonRequest
	_ = ctx.ShouldBindJSON(&request)
	order, err := server.orders.ForceCancel(ctx.Request.Context(), orderID, getClaims(ctx).UserID, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleRefundOrder(ctx *gin.Context) {
	orderID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request refundRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	returns := make([]orders.ReturnRequest, 0, len(request.Lines))
	for _, line := range request.Lines {
		returns = append(returns, orders.ReturnRequest{LineID: line.LineID, Reason: line.Reason})
	}
	order, err := server.orders.ProcessRefund(ctx.Request.Context(), orderID, getClaims(ctx).UserID, returns)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"order": order})
}

func (server *Server) handleIssueVoucher(ctx *gin.Context) {
	var request issueVoucherRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	voucher, err := server.vouchers.IssueDirect(ctx.Request.Context(), getClaims(ctx).UserID, points.Amount(request.Amount), request.Memo)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"voucher": voucher})
}

func (server *Server) handleIssueOrderVoucher(ctx *gin.Context) {
	var request orderVoucherRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	voucher, err := server.vouchers.IssueForOrder(ctx.Request.Context(), request.OrderID, request.LineID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusCreated, gin.H{"voucher": voucher})
}

func (server *Server) handleListVouchers(ctx *gin.Context) {
	claims := getClaims(ctx)
	filter := vouchers.Filter{
		Page:     queryInt(ctx, "page"),
		PageSize: queryInt(ctx, "page_size"),
	}
	if raw := ctx.Query("status"); raw != "" {
		status := vouchers.Status(raw)
		filter.Status = &status
	}
	if claims.Role == RoleTailor {
		shopID := claims.UserID
		filter.TailorShopID = &shopID
	} else {
		filter.UserID = scopeFor(claims)
		if filter.UserID == nil {
			filter.UserID = queryUint(ctx, "user_id")
		}
	}
	result, total, err := server.vouchers.List(ctx.Request.Context(), filter)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"vouchers": result, "total": total})
}

func (server *Server) handleGetVoucher(ctx *gin.Context) {
	voucherID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	claims := getClaims(ctx)
	owner := scopeFor(claims)
	if claims.Role == RoleTailor {
		// Shops look up any voucher presented to them; MarkUsed still
		// verifies the registered shop.
		owner = nil
	}
	var voucher vouchers.Voucher
	var err error
	if owner == nil {
		voucher, err = server.vouchers.Get(ctx.Request.Context(), voucherID)
	} else {
		voucher, err = server.vouchers.GetForUser(ctx.Request.Context(), voucherID, *owner)
	}
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"voucher": voucher})
}

func (server *Server) handleRegisterVoucher(ctx *gin.Context) {
	voucherID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request registerVoucherRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	voucher, err := server.vouchers.Register(ctx.Request.Context(), voucherID, getClaims(ctx).UserID, request.TailorShopID, request.Details)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"voucher": voucher})
}

func (server *Server) handleUseVoucher(ctx *gin.Context) {
	voucherID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	voucher, err := server.vouchers.MarkUsed(ctx.Request.Context(), voucherID, getClaims(ctx).UserID)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"voucher": voucher})
}

func (server *Server) handleVoucherCancelRequest(ctx *gin.Context) {
	voucherID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request reasonRequest
	_ = ctx.ShouldBindJSON(&request)
	voucher, err := server.vouchers.RequestCancel(ctx.Request.Context(), voucherID, getClaims(ctx).UserID, request.Reason)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"voucher": voucher})
}

func (server *Server) handleVoucherCancelResolve(ctx *gin.Context) {
	voucherID, ok := pathID(ctx, "id")
	if !ok {
		return
	}
	var request resolveCancelRequest
	if err := ctx.ShouldBindJSON(&request); err != nil {
		ctx.JSON(http.StatusBadRequest, errorResponse("invalid_payload", "expected JSON body"))
		return
	}
	voucher, err := server.vouchers.ResolveCancel(ctx.Request.Context(), voucherID, request.Approve)
	if err != nil {
		server.respondError(ctx, err)
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"voucher": voucher})
}

func queryUint(ctx *gin.Context, name string) *uint {
	raw := ctx.Query(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	converted := uint(value)
	return &converted
}

func queryInt(ctx *gin.Context, name string) int {
	value, err := strconv.Atoi(ctx.Query(name))
	if err != nil {
		return 0
	}
	return value
}
