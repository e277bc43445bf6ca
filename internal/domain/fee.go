package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// productTally is the countable footprint of one product, computed without
// mutating anything so the refund engine can simulate exclusions.
type productTally struct {
	fee   decimal.Decimal
	lines int
	qty   int64
	pv    decimal.Decimal
}

// tallyProduct computes a product's delivery fee and countable aggregates
// over the given lines. Lines in the excluded set are treated as not
// countable.
func (o *Order) tallyProduct(p *Product, excluded map[string]bool) (productTally, error) {
	var t productTally
	t.pv = decimal.Zero

	for _, line := range o.LinesOfProduct(p.ID) {
		if excluded[line.ID] || !line.Status.Countable() {
			continue
		}
		t.lines++
		t.qty += line.Quantity
		t.pv = t.pv.Add(line.Value())
	}

	t.fee = decimal.Zero
	if !p.HasDeliverySchedule || t.lines == 0 {
		return t, nil
	}

	switch p.PricingMethod {
	case PricingFree:
	case PricingRegularCharge:
		t.fee = p.BaseFee
	case PricingUnitCharge:
		t.fee = p.BaseFee.Mul(unitCount(t.qty, p.ChargeStandard))
	case PricingConditionalCharge:
		if t.pv.LessThan(p.ChargeStandard) {
			t.fee = p.BaseFee
		}
	default:
		return t, fmt.Errorf("%w: %q on product %s", ErrInvalidPricingMethod, p.PricingMethod, p.ID)
	}

	if t.fee.IsNegative() {
		return t, fmt.Errorf("%w: negative fee for product %s", ErrInvariant, p.ID)
	}
	return t, nil
}

// unitCount is ceil(qty / chargeStandard), the number of boxes a UNIT_CHARGE
// product ships in.
func unitCount(qty int64, chargeStandard decimal.Decimal) decimal.Decimal {
	if chargeStandard.IsZero() {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromInt(qty).Div(chargeStandard).Ceil()
}

// groupDiscount returns the amount subtracted from the summed sibling fees so
// that only the selected (max or min) fee is effectively charged. The same
// selection rule drives both aggregation and the refund engine's delta
// simulation.
func groupDiscount(method DiscountMethod, fees []decimal.Decimal) (decimal.Decimal, error) {
	if len(fees) == 0 {
		return decimal.Zero, nil
	}
	selected := fees[0]
	total := decimal.Zero
	for _, f := range fees {
		total = total.Add(f)
		switch method {
		case DiscountMax:
			if f.GreaterThan(selected) {
				selected = f
			}
		case DiscountMin:
			if f.LessThan(selected) {
				selected = f
			}
		default:
			return decimal.Zero, fmt.Errorf("%w: discount method %q", ErrInvalidPricingMethod, method)
		}
	}
	discount := total.Sub(selected)
	if discount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: discount below zero", ErrInvariant)
	}
	return discount, nil
}

// groupFigures is one shipment group's fee computation result.
type groupFigures struct {
	raw       decimal.Decimal
	discount  decimal.Decimal
	surcharge decimal.Decimal
}

func (f groupFigures) net() decimal.Decimal {
	return f.raw.Add(f.surcharge).Sub(f.discount)
}

// tallyGroup computes a group's raw fee, discount and region surcharge over
// its sibling products, treating excluded lines as not countable. It never
// mutates the aggregate.
func (o *Order) tallyGroup(g *ShipmentGroup, excluded map[string]bool) (groupFigures, error) {
	fig := groupFigures{raw: decimal.Zero, discount: decimal.Zero, surcharge: decimal.Zero}

	products := o.ProductsOfGroup(g.ID)
	tallies := make(map[string]productTally, len(products))
	totalQty := int64(0)
	for _, p := range products {
		t, err := o.tallyProduct(p, excluded)
		if err != nil {
			return fig, err
		}
		tallies[p.ID] = t
		totalQty += t.qty
	}

	// No countable quantity anywhere means no shipment occurs.
	if totalQty == 0 {
		return fig, nil
	}

	fig.surcharge = g.regionSurcharge(o.Region)

	if !g.Virtual() {
		var countableFees []decimal.Decimal
		for _, p := range products {
			t := tallies[p.ID]
			fig.raw = fig.raw.Add(t.fee)
			if t.lines > 0 {
				countableFees = append(countableFees, t.fee)
			}
		}
		if len(countableFees) == 0 {
			// Guards against charging on an all-canceled group.
			return groupFigures{raw: decimal.Zero, discount: decimal.Zero, surcharge: decimal.Zero}, nil
		}
		discount, err := groupDiscount(g.DiscountMethod, countableFees)
		if err != nil {
			return fig, err
		}
		fig.discount = discount
		return fig, nil
	}

	// Virtual group: the fee is the sole product's fee; a UNIT_CHARGE product
	// still ships in discrete boxes, so the surcharge multiplies by box count.
	if len(products) == 0 {
		return groupFigures{raw: decimal.Zero, discount: decimal.Zero, surcharge: decimal.Zero}, nil
	}
	only := products[0]
	t := tallies[only.ID]
	if t.lines == 0 {
		return groupFigures{raw: decimal.Zero, discount: decimal.Zero, surcharge: decimal.Zero}, nil
	}
	fig.raw = t.fee
	if only.PricingMethod == PricingUnitCharge {
		fig.surcharge = fig.surcharge.Mul(unitCount(t.qty, only.ChargeStandard))
	}
	return fig, nil
}

// regionSurcharge looks up the additional delivery fee for the destination
// region. Two-tier schedules ignore the Jeju/outside-Jeju distinction.
func (g *ShipmentGroup) regionSurcharge(region RegionTier) decimal.Decimal {
	if !g.AdditionalPricingSet {
		return decimal.Zero
	}
	switch g.RegionDivisionLevel {
	case 2:
		if region == RegionMainland {
			return decimal.Zero
		}
		return g.Division2Fee
	case 3:
		switch region {
		case RegionJeju:
			return g.Division3JejuFee
		case RegionOutsideJeju:
			return g.Division3OutsideFee
		default:
			return decimal.Zero
		}
	default:
		return decimal.Zero
	}
}

// RecalculateFees re-derives every cached aggregate in dependency order:
// line values, product fees, group fees, then the order totals. It is
// idempotent and must run after any status change that flips countability.
func (o *Order) RecalculateFees() error {
	pv := decimal.Zero
	for _, line := range o.Lines {
		if line.Status.Countable() {
			line.LineValue = line.Value()
		} else {
			line.LineValue = decimal.Zero
		}
		pv = pv.Add(line.LineValue)
	}

	for _, p := range o.Products {
		t, err := o.tallyProduct(p, nil)
		if err != nil {
			return err
		}
		p.CountableLines = t.lines
		p.CountableQty = t.qty
		p.PVAmount = t.pv
		p.Fee = t.fee
	}

	deliveryFee := decimal.Zero
	for _, g := range o.Groups {
		fig, err := o.tallyGroup(g, nil)
		if err != nil {
			return err
		}
		g.RawFee = fig.raw
		g.Discount = fig.discount
		g.Surcharge = fig.surcharge

		g.PVAmount = decimal.Zero
		for _, p := range o.ProductsOfGroup(g.ID) {
			g.PVAmount = g.PVAmount.Add(p.PVAmount)
		}

		net := g.NetFee()
		if net.IsNegative() {
			return fmt.Errorf("%w: negative net fee for group %s", ErrInvariant, g.ID)
		}
		deliveryFee = deliveryFee.Add(net)
	}

	// Ungrouped products charge their own fee directly.
	for _, p := range o.Products {
		if p.GroupID == "" {
			deliveryFee = deliveryFee.Add(p.Fee)
		}
	}

	o.CurrPVAmount = pv
	o.CurrDeliveryFee = deliveryFee
	return nil
}

// groupNetFeeExcluding computes what a group's net fee would be with the
// given line treated as not countable, without touching the live aggregate.
func (o *Order) groupNetFeeExcluding(g *ShipmentGroup, excludedLineID string) (decimal.Decimal, error) {
	fig, err := o.tallyGroup(g, map[string]bool{excludedLineID: true})
	if err != nil {
		return decimal.Zero, err
	}
	return fig.net(), nil
}
