package gormstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/quartermasterhq/pointstore/internal/orders"
	"github.com/quartermasterhq/pointstore/internal/vouchers"
	"github.com/quartermasterhq/pointstore/pkg/points"
)

func (store *Store) CreateOrder(ctx context.Context, order *orders.Order) error {
	row := orderFromDomain(*order)
	err := store.conn(ctx).Create(&row).Error
	if isUniqueViolation(err) {
		return ErrDuplicateNumber
	}
	if err != nil {
		return err
	}
	hydrated := orderToDomain(row)
	*order = hydrated
	return nil
}

func (store *Store) GetOrder(ctx context.Context, orderID uint) (orders.Order, error) {
	return store.getOrder(ctx, orderID, false)
}

func (store *Store) GetOrderForUpdate(ctx context.Context, orderID uint) (orders.Order, error) {
	return store.getOrder(ctx, orderID, true)
}

func (store *Store) getOrder(ctx context.Context, orderID uint, lock bool) (orders.Order, error) {
	query := store.conn(ctx).Preload("Lines").Preload("Delivery")
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: "orders"}})
	}
	var row Order
	if err := query.Take(&row, "id = ?", orderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.Order{}, orders.ErrOrderNotFound
		}
		return orders.Order{}, err
	}
	return orderToDomain(row), nil
}

func (store *Store) SaveOrder(ctx context.Context, order *orders.Order) error {
	return store.conn(ctx).
		Model(&Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"status":              order.Status.String(),
			"total_amount":        order.TotalAmount.Int64(),
			"reserved_point":      order.ReservedPoint.Int64(),
			"used_point":          order.UsedPoint.Int64(),
			"used_voucher_amount": order.UsedVoucherAmount.Int64(),
			"cancel_reason":       order.CancelReason,
			"cancelled_by":        order.CancelledBy,
			"cancelled_at":        unixOrNil(order.CancelledAtUnixUTC),
		}).Error
}

func (store *Store) SaveLine(ctx context.Context, line *orders.Line) error {
	return store.conn(ctx).
		Model(&OrderLine{}).
		Where("id = ?", line.ID).
		Updates(map[string]interface{}{
			"returned":      line.Returned,
			"returned_at":   unixOrNil(line.ReturnedAtUnixUTC),
			"return_reason": line.ReturnReason,
		}).Error
}

func (store *Store) SaveDelivery(ctx context.Context, delivery *orders.Delivery) error {
	return store.conn(ctx).
		Model(&OrderDelivery{}).
		Where("id = ?", delivery.ID).
		Updates(map[string]interface{}{
			"status":          string(delivery.Status),
			"tracking_number": delivery.TrackingNumber,
			"shipped_at":      unixOrNil(delivery.ShippedAtUnixUTC),
			"delivered_at":    unixOrNil(delivery.DeliveredAtUnixUTC),
		}).Error
}

func (store *Store) ListOrders(ctx context.Context, filter orders.Filter) ([]orders.Order, int64, error) {
	query := store.conn(ctx).Model(&Order{})
	if filter.UserID != nil {
		query = query.Scopes(OwnedBy(*filter.UserID))
	}
	if filter.WarehouseID != nil {
		query = query.Where("warehouse_id = ?", *filter.WarehouseID)
	}
	if filter.Channel != nil {
		query = query.Where("channel = ?", string(*filter.Channel))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", filter.Status.String())
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []Order
	err := query.
		Preload("Lines").
		Preload("Delivery").
		Order("created_at DESC, id DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	result := make([]orders.Order, 0, len(rows))
	for _, row := range rows {
		result = append(result, orderToDomain(row))
	}
	return result, total, nil
}

// VoucherLine resolves a voucher-settled order line for voucher issuance.
func (store *Store) VoucherLine(ctx context.Context, orderID uint, lineID uint) (uint, points.Amount, error) {
	order, err := store.getOrder(ctx, orderID, false)
	if err != nil {
		return 0, 0, err
	}
	for _, line := range order.Lines {
		if line.ID != lineID {
			continue
		}
		if line.Settlement != orders.SettlementVoucher {
			return 0, 0, vouchers.ErrLineNotEligible
		}
		return order.UserID, line.LineTotal, nil
	}
	return 0, 0, orders.ErrLineNotFound
}

func orderFromDomain(order orders.Order) Order {
	row := Order{
		ID:                order.ID,
		Number:            order.Number,
		UserID:            order.UserID,
		WarehouseID:       order.WarehouseID,
		Channel:           string(order.Channel),
		Status:            order.Status.String(),
		TotalAmount:       order.TotalAmount.Int64(),
		ReservedPoint:     order.ReservedPoint.Int64(),
		UsedPoint:         order.UsedPoint.Int64(),
		UsedVoucherAmount: order.UsedVoucherAmount.Int64(),
		CancelReason:      order.CancelReason,
		CancelledBy:       order.CancelledBy,
		CancelledAt:       unixOrNil(order.CancelledAtUnixUTC),
	}
	for _, line := range order.Lines {
		row.Lines = append(row.Lines, OrderLine{
			ID:           line.ID,
			OrderID:      order.ID,
			ItemID:       line.ItemID,
			VariantID:    line.VariantID,
			Quantity:     line.Quantity,
			UnitPrice:    line.UnitPrice.Int64(),
			LineTotal:    line.LineTotal.Int64(),
			Settlement:   string(line.Settlement),
			Returned:     line.Returned,
			ReturnedAt:   unixOrNil(line.ReturnedAtUnixUTC),
			ReturnReason: line.ReturnReason,
		})
	}
	if order.Delivery != nil {
		row.Delivery = &OrderDelivery{
			ID:             order.Delivery.ID,
			OrderID:        order.ID,
			Mode:           string(order.Delivery.Mode),
			Status:         string(order.Delivery.Status),
			DestinationID:  order.Delivery.DestinationID,
			RecipientName:  order.Delivery.RecipientName,
			RecipientPhone: order.Delivery.RecipientPhone,
			Address:        order.Delivery.Address,
			Note:           order.Delivery.Note,
			TrackingNumber: order.Delivery.TrackingNumber,
			ShippedAt:      unixOrNil(order.Delivery.ShippedAtUnixUTC),
			DeliveredAt:    unixOrNil(order.Delivery.DeliveredAtUnixUTC),
		}
	}
	return row
}

func orderToDomain(row Order) orders.Order {
	order := orders.Order{
		ID:                 row.ID,
		Number:             row.Number,
		UserID:             row.UserID,
		WarehouseID:        row.WarehouseID,
		Channel:            orders.Channel(row.Channel),
		Status:             orders.Status(row.Status),
		TotalAmount:        points.Amount(row.TotalAmount),
		ReservedPoint:      points.Amount(row.ReservedPoint),
		UsedPoint:          points.Amount(row.UsedPoint),
		UsedVoucherAmount:  points.Amount(row.UsedVoucherAmount),
		CancelReason:       row.CancelReason,
		CancelledBy:        row.CancelledBy,
		CancelledAtUnixUTC: timeOrZero(row.CancelledAt),
		PlacedAtUnixUTC:    row.CreatedAt.Unix(),
	}
	for _, line := range row.Lines {
		order.Lines = append(order.Lines, orders.Line{
			ID:                line.ID,
			OrderID:           line.OrderID,
			ItemID:            line.ItemID,
			VariantID:         line.VariantID,
			Quantity:          line.Quantity,
			UnitPrice:         points.Amount(line.UnitPrice),
			LineTotal:         points.Amount(line.LineTotal),
			Settlement:        orders.Settlement(line.Settlement),
			Returned:          line.Returned,
			ReturnedAtUnixUTC: timeOrZero(line.ReturnedAt),
			ReturnReason:      line.ReturnReason,
		})
	}
	if row.Delivery != nil {
		order.Delivery = &orders.Delivery{
			ID:                 row.Delivery.ID,
			OrderID:            row.Delivery.OrderID,
			Mode:               orders.DeliveryMode(row.Delivery.Mode),
			Status:             orders.DeliveryStatus(row.Delivery.Status),
			DestinationID:      row.Delivery.DestinationID,
			RecipientName:      row.Delivery.RecipientName,
			RecipientPhone:     row.Delivery.RecipientPhone,
			Address:            row.Delivery.Address,
			Note:               row.Delivery.Note,
			TrackingNumber:     row.Delivery.TrackingNumber,
			ShippedAtUnixUTC:   timeOrZero(row.Delivery.ShippedAt),
			DeliveredAtUnixUTC: timeOrZero(row.Delivery.DeliveredAt),
		}
	}
	return order
}
