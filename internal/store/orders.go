package store

import (
	"context"
	"database/sql"
	"fmt"

	"fulfillment-service/internal/domain"
	"fulfillment-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ErrVersionConflict is returned when a concurrent writer bumped the order
// version between load and save.
var ErrVersionConflict = fmt.Errorf("order version conflict")

// CreateOrder inserts the whole aggregate graph in one transaction. The
// caller has already run the initial aggregation pass and snapshot.
func (s *Store) CreateOrder(ctx context.Context, o *domain.Order, idempotencyKey string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, country, postal_code, status, version,
			init_pv_amount, init_delivery_fee, curr_pv_amount, curr_delivery_fee, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, 1, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, o.Country, o.PostalCode, o.Status,
		o.InitPVAmount, o.InitDeliveryFee, o.CurrPVAmount, o.CurrDeliveryFee, idempotencyKey)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	for _, g := range o.Groups {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO shipment_groups (id, order_id, supplier_group_id, supplier_name,
				discount_method, region_division_level, division2_fee, division3_jeju_fee,
				division3_outside_fee, additional_pricing_set, loss_fee,
				raw_fee, discount, surcharge, pv_amount, init_raw_fee, init_discount, init_surcharge)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`,
			g.ID, o.ID, g.SupplierGroupID, g.SupplierName,
			g.DiscountMethod, g.RegionDivisionLevel, g.Division2Fee, g.Division3JejuFee,
			g.Division3OutsideFee, g.AdditionalPricingSet, g.LossFee,
			g.RawFee, g.Discount, g.Surcharge, g.PVAmount, g.InitRawFee, g.InitDiscount, g.InitSurcharge)
		if err != nil {
			return fmt.Errorf("failed to insert shipment group %s: %w", g.ID, err)
		}
	}

	for _, p := range o.Products {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_products (id, order_id, group_id, title, supplier_id,
				pricing_method, has_delivery_schedule, base_fee, charge_standard,
				exchange_fee, return_fee, return_fee_if_free_delivery,
				countable_lines, countable_qty, pv_amount, fee, init_fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
			p.ID, o.ID, p.GroupID, p.Title, p.SupplierID,
			p.PricingMethod, p.HasDeliverySchedule, p.BaseFee, p.ChargeStandard,
			p.ExchangeFee, p.ReturnFee, p.ReturnFeeIfFreeDelivery,
			p.CountableLines, p.CountableQty, p.PVAmount, p.Fee, p.InitFee)
		if err != nil {
			return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
		}
	}

	for _, l := range o.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, group_id, title, status,
				sell_price, quantity, request_status, request_status_date, purchase_finalized_date,
				return_fee_method, exchange_fee_method, carrier_code, carrier_number,
				tracking_level, line_value, calculated_return_fee, calculated_exchange_fee)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
			l.ID, o.ID, l.ProductID, l.GroupID, l.Title, l.Status,
			l.SellPrice, l.Quantity, l.RequestStatus, l.RequestStatusDate, l.PurchaseFinalizedDate,
			l.ReturnFeeMethod, l.ExchangeFeeMethod, l.CarrierCode, l.CarrierNumber,
			l.TrackingLevel, l.LineValue, l.CalculatedReturnFee, l.CalculatedExchangeFee)
		if err != nil {
			return fmt.Errorf("failed to insert line %s: %w", l.ID, err)
		}
	}

	if o.Payment != nil {
		if err := insertPayment(ctx, tx, o); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, o *domain.Order) error {
	pay := o.Payment
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, init_gateway_amount, curr_gateway_amount,
			gateway_refunded, init_point_amount, curr_point_amount, outstanding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		pay.ID, o.ID, pay.InitGatewayAmount, pay.CurrGatewayAmount,
		pay.GatewayRefunded, pay.InitPointAmount, pay.CurrPointAmount, pay.Outstanding)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	for _, c := range pay.Credits {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO point_credits (id, payment_id, priority, provider_name, provider_code,
				line_id, group_id, init_balance, balance, refunded, confirm_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			c.ID, pay.ID, c.Priority, c.ProviderName, c.ProviderCode,
			c.LineID, c.GroupID, c.InitBalance, c.Balance, c.Refunded, c.ConfirmDate)
		if err != nil {
			return fmt.Errorf("failed to insert point credit %s: %w", c.ID, err)
		}
	}
	return nil
}

// GetOrder loads the full aggregate graph.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	var row models.OrderRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order not found: %s", id)
	}
	if err != nil {
		return nil, err
	}

	o := &domain.Order{
		ID:              row.ID,
		UserID:          row.UserID,
		Country:         row.Country,
		PostalCode:      row.PostalCode,
		Region:          domain.ResolveRegion(row.PostalCode),
		Status:          domain.OrderStatus(row.Status),
		PaidDate:        row.PaidDate,
		Version:         row.Version,
		InitPVAmount:    row.InitPVAmount,
		InitDeliveryFee: row.InitDeliveryFee,
		CurrPVAmount:    row.CurrPVAmount,
		CurrDeliveryFee: row.CurrDeliveryFee,
		Lines:           map[string]*domain.OrderLine{},
		Products:        map[string]*domain.Product{},
		Groups:          map[string]*domain.ShipmentGroup{},
	}

	var groups []models.ShipmentGroupRow
	if err := s.db.SelectContext(ctx, &groups,
		"SELECT * FROM shipment_groups WHERE order_id = $1", id); err != nil {
		return nil, err
	}
	for _, g := range groups {
		o.Groups[g.ID] = &domain.ShipmentGroup{
			ID:                   g.ID,
			SupplierGroupID:      g.SupplierGroupID,
			SupplierName:         g.SupplierName,
			DiscountMethod:       domain.DiscountMethod(g.DiscountMethod),
			RegionDivisionLevel:  g.RegionDivisionLevel,
			Division2Fee:         g.Division2Fee,
			Division3JejuFee:     g.Division3JejuFee,
			Division3OutsideFee:  g.Division3OutsideFee,
			AdditionalPricingSet: g.AdditionalPricingSet,
			LossFee:              g.LossFee,
			RawFee:               g.RawFee,
			Discount:             g.Discount,
			Surcharge:            g.Surcharge,
			PVAmount:             g.PVAmount,
			InitRawFee:           g.InitRawFee,
			InitDiscount:         g.InitDiscount,
			InitSurcharge:        g.InitSurcharge,
		}
	}

	var products []models.OrderProductRow
	if err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM order_products WHERE order_id = $1", id); err != nil {
		return nil, err
	}
	for _, p := range products {
		o.Products[p.ID] = &domain.Product{
			ID:                      p.ID,
			GroupID:                 p.GroupID,
			Title:                   p.Title,
			SupplierID:              p.SupplierID,
			PricingMethod:           domain.PricingMethod(p.PricingMethod),
			HasDeliverySchedule:     p.HasDeliverySchedule,
			BaseFee:                 p.BaseFee,
			ChargeStandard:          p.ChargeStandard,
			ExchangeFee:             p.ExchangeFee,
			ReturnFee:               p.ReturnFee,
			ReturnFeeIfFreeDelivery: p.ReturnFeeIfFreeDelivery,
			CountableLines:          p.CountableLines,
			CountableQty:            p.CountableQty,
			PVAmount:                p.PVAmount,
			Fee:                     p.Fee,
			InitFee:                 p.InitFee,
		}
	}

	var lines []models.OrderLineRow
	if err := s.db.SelectContext(ctx, &lines,
		"SELECT * FROM order_lines WHERE order_id = $1", id); err != nil {
		return nil, err
	}
	for _, l := range lines {
		o.Lines[l.ID] = &domain.OrderLine{
			ID:                    l.ID,
			ProductID:             l.ProductID,
			GroupID:               l.GroupID,
			Title:                 l.Title,
			Status:                domain.LineStatus(l.Status),
			SellPrice:             l.SellPrice,
			Quantity:              l.Quantity,
			RequestStatus:         domain.LineStatus(l.RequestStatus),
			RequestStatusDate:     l.RequestStatusDate,
			PurchaseFinalizedDate: l.PurchaseFinalizedDate,
			ReturnFeeMethod:       l.ReturnFeeMethod,
			ExchangeFeeMethod:     l.ExchangeFeeMethod,
			CarrierCode:           l.CarrierCode,
			CarrierNumber:         l.CarrierNumber,
			TrackingLevel:         l.TrackingLevel,
			LineValue:             l.LineValue,
			CalculatedReturnFee:   l.CalculatedReturnFee,
			CalculatedExchangeFee: l.CalculatedExchangeFee,
		}
	}

	payment, err := s.loadPayment(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Payment = payment

	return o, nil
}

func (s *Store) loadPayment(ctx context.Context, orderID string) (*domain.PaymentAccount, error) {
	var row models.PaymentRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM payments WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	payment := &domain.PaymentAccount{
		ID:                row.ID,
		InitGatewayAmount: row.InitGatewayAmount,
		CurrGatewayAmount: row.CurrGatewayAmount,
		GatewayRefunded:   row.GatewayRefunded,
		InitPointAmount:   row.InitPointAmount,
		CurrPointAmount:   row.CurrPointAmount,
		Outstanding:       row.Outstanding,
	}

	var credits []models.PointCreditRow
	if err := s.db.SelectContext(ctx, &credits,
		"SELECT * FROM point_credits WHERE payment_id = $1 ORDER BY priority, id", row.ID); err != nil {
		return nil, err
	}
	for _, c := range credits {
		payment.Credits = append(payment.Credits, &domain.PointCredit{
			ID:           c.ID,
			Priority:     c.Priority,
			ProviderName: c.ProviderName,
			ProviderCode: c.ProviderCode,
			LineID:       c.LineID,
			GroupID:      c.GroupID,
			InitBalance:  c.InitBalance,
			Balance:      c.Balance,
			Refunded:     c.Refunded,
			ConfirmDate:  c.ConfirmDate,
		})
	}

	var refunds []models.RefundRecordRow
	if err := s.db.SelectContext(ctx, &refunds,
		"SELECT * FROM refund_records WHERE payment_id = $1 ORDER BY created_at", row.ID); err != nil {
		return nil, err
	}
	for _, r := range refunds {
		payment.Refunds = append(payment.Refunds, &domain.RefundRecord{
			ID:            r.ID,
			PaymentID:     r.PaymentID,
			OrderID:       r.OrderID,
			ContextLineID: r.ContextLineID,
			LineID:        r.LineID,
			CreditID:      r.CreditID,
			PointAmount:   r.PointAmount,
			GatewayAmount: r.GatewayAmount,
			CreatedAt:     r.CreatedAt,
		})
	}

	return payment, nil
}

// GetOrderIDByIdempotencyKey returns the order created under the key, empty
// when none exists.
func (s *Store) GetOrderIDByIdempotencyKey(ctx context.Context, key string) (string, error) {
	var id string
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM orders WHERE idempotency_key = $1", key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return id, err
}

// SaveOrder writes back every mutable part of the aggregate with an
// optimistic version check, and appends refund records and status logs
// produced by the same unit of work.
func (s *Store) SaveOrder(ctx context.Context, o *domain.Order, newRefunds []*domain.RefundRecord, changes []*domain.StatusChange) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, paid_date = $2, curr_pv_amount = $3,
			curr_delivery_fee = $4, version = version + 1, updated_at = NOW()
		WHERE id = $5 AND version = $6`,
		o.Status, o.PaidDate, o.CurrPVAmount, o.CurrDeliveryFee, o.ID, o.Version)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: order %s version %d", ErrVersionConflict, o.ID, o.Version)
	}
	o.Version++

	for _, g := range o.Groups {
		_, err = tx.ExecContext(ctx, `
			UPDATE shipment_groups SET loss_fee = $1, raw_fee = $2, discount = $3,
				surcharge = $4, pv_amount = $5
			WHERE id = $6`,
			g.LossFee, g.RawFee, g.Discount, g.Surcharge, g.PVAmount, g.ID)
		if err != nil {
			return fmt.Errorf("failed to update shipment group %s: %w", g.ID, err)
		}
	}

	for _, p := range o.Products {
		_, err = tx.ExecContext(ctx, `
			UPDATE order_products SET countable_lines = $1, countable_qty = $2,
				pv_amount = $3, fee = $4
			WHERE id = $5`,
			p.CountableLines, p.CountableQty, p.PVAmount, p.Fee, p.ID)
		if err != nil {
			return fmt.Errorf("failed to update product %s: %w", p.ID, err)
		}
	}

	for _, l := range o.Lines {
		_, err = tx.ExecContext(ctx, `
			UPDATE order_lines SET status = $1, request_status = $2, request_status_date = $3,
				purchase_finalized_date = $4, return_fee_method = $5, exchange_fee_method = $6,
				carrier_code = $7, carrier_number = $8, tracking_level = $9, line_value = $10,
				calculated_return_fee = $11, calculated_exchange_fee = $12
			WHERE id = $13`,
			l.Status, l.RequestStatus, l.RequestStatusDate,
			l.PurchaseFinalizedDate, l.ReturnFeeMethod, l.ExchangeFeeMethod,
			l.CarrierCode, l.CarrierNumber, l.TrackingLevel, l.LineValue,
			l.CalculatedReturnFee, l.CalculatedExchangeFee, l.ID)
		if err != nil {
			return fmt.Errorf("failed to update line %s: %w", l.ID, err)
		}
	}

	if o.Payment != nil {
		pay := o.Payment
		_, err = tx.ExecContext(ctx, `
			UPDATE payments SET curr_gateway_amount = $1, gateway_refunded = $2,
				curr_point_amount = $3, outstanding = $4, updated_at = NOW()
			WHERE id = $5`,
			pay.CurrGatewayAmount, pay.GatewayRefunded, pay.CurrPointAmount, pay.Outstanding, pay.ID)
		if err != nil {
			return fmt.Errorf("failed to update payment: %w", err)
		}
		for _, c := range pay.Credits {
			_, err = tx.ExecContext(ctx, `
				UPDATE point_credits SET balance = $1, refunded = $2, confirm_date = $3
				WHERE id = $4`,
				c.Balance, c.Refunded, c.ConfirmDate, c.ID)
			if err != nil {
				return fmt.Errorf("failed to update point credit %s: %w", c.ID, err)
			}
		}
	}

	for _, r := range newRefunds {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO refund_records (id, payment_id, order_id, context_line_id,
				line_id, credit_id, point_amount, gateway_amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			r.ID, r.PaymentID, r.OrderID, r.ContextLineID,
			r.LineID, r.CreditID, r.PointAmount, r.GatewayAmount, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert refund record %s: %w", r.ID, err)
		}
	}

	for _, c := range changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO line_status_logs (order_id, line_id, from_status, to_status, initiator, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			o.ID, c.LineID, c.From, c.To, c.Initiator, c.OccurredAt)
		if err != nil {
			return fmt.Errorf("failed to insert status log for line %s: %w", c.LineID, err)
		}
	}

	return tx.Commit()
}

// GetLineStatusLogs returns the audit trail for one order, oldest first.
func (s *Store) GetLineStatusLogs(ctx context.Context, orderID string) ([]models.LineStatusLogRow, error) {
	var logs []models.LineStatusLogRow
	err := s.db.SelectContext(ctx, &logs,
		"SELECT * FROM line_status_logs WHERE order_id = $1 ORDER BY occurred_at, id", orderID)
	return logs, err
}

// GetRefundRecords returns the refund ledger for one order, oldest first.
func (s *Store) GetRefundRecords(ctx context.Context, orderID string) ([]models.RefundRecordRow, error) {
	var refunds []models.RefundRecordRow
	err := s.db.SelectContext(ctx, &refunds,
		"SELECT * FROM refund_records WHERE order_id = $1 ORDER BY created_at, id", orderID)
	return refunds, err
}
