package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/inventory"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

func errorResponse(code string, message string) gin.H {
	return gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
}

// respondError translates domain errors into HTTP statuses. Unrecognized
// errors surface as 500 without leaking their text.
func (server *Server) respondError(ctx *gin.Context, err error) {
	status, code := classifyError(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		server.logger.Error("request failed", zap.Error(err))
		message = "internal error"
	}
	ctx.JSON(status, errorResponse(code, message))
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, points.ErrAccountNotFound),
		errors.Is(err, inventory.ErrStockNotFound),
		errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, orders.ErrLineNotFound),
		errors.Is(err, orders.ErrUserNotFound),
		errors.Is(err, orders.ErrWarehouseNotFound),
		errors.Is(err, orders.ErrItemNotFound),
		errors.Is(err, vouchers.ErrVoucherNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, points.ErrInsufficientFunds):
		return http.StatusConflict, "insufficient_points"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, points.ErrInsufficientReservation),
		errors.Is(err, inventory.ErrInsufficientReserved),
		errors.Is(err, inventory.ErrNegativeStock):
		return http.StatusConflict, "reservation_conflict"
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, vouchers.ErrInvalidTransition),
		errors.Is(err, vouchers.ErrVoucherRegistered),
		errors.Is(err, orders.ErrLineReturned):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, points.ErrInvalidAmount),
		errors.Is(err, points.ErrInvalidKind),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, inventory.ErrInvalidMovementKind),
		errors.Is(err, inventory.ErrInvalidAdjustKind),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, orders.ErrInvalidQuantity),
		errors.Is(err, orders.ErrInvalidPrice),
		errors.Is(err, orders.ErrInvalidChannel),
		errors.Is(err, orders.ErrInvalidSettlement),
		errors.Is(err, vouchers.ErrInvalidAmount),
		errors.Is(err, vouchers.ErrLineNotEligible):
		return http.StatusBadRequest, "invalid_request"
	}
	return http.StatusInternalServerError, "internal_error"
}
