package domain

import "time"

// LineStatus is the per-line fulfillment status. The full set covers the
// pre-payment, fulfillment, return-claim, exchange-claim and order-cancel
// phases.
type LineStatus string

const (
	StatusUnselectedInCart LineStatus = "unselected"

	// Payment phase
	StatusPaymentRequired            LineStatus = "payment_required"
	StatusPaymentFailValidation      LineStatus = "payment_fail_validation"
	StatusPaymentFailInvalidTrial    LineStatus = "payment_fail_invalid_payment_trial"
	StatusPaymentFailTimeOut         LineStatus = "payment_fail_time_out"
	StatusPaymentFailError           LineStatus = "payment_fail_error"
	StatusPaymentFailPointError      LineStatus = "payment_fail_point_error"

	// Fulfillment phase
	StatusCheckRequired          LineStatus = "check_required"
	StatusOrderFailCheckRejected LineStatus = "order_fail_check_rejected"
	StatusShipRequired           LineStatus = "ship_required"
	StatusShipOK                 LineStatus = "ship_ok"
	StatusShipOKDirectDelivery   LineStatus = "ship_ok_direct_delivery"
	StatusOrderFailShipRejected  LineStatus = "order_fail_ship_rejected"
	StatusShipDelay              LineStatus = "ship_delay"
	StatusDeliveryIng            LineStatus = "delivery_ing"
	StatusDeliveryOK             LineStatus = "delivery_ok"
	StatusDeliveryDelay          LineStatus = "delivery_delay"
	StatusOrderFinished          LineStatus = "order_finished"
	StatusOrderFinishedReviewed  LineStatus = "order_finished_reviewed"

	// Return claim
	StatusRefundRequested                 LineStatus = "refund_requested"
	StatusRefundChecked                   LineStatus = "refund_checked"
	StatusRefundAgreed                    LineStatus = "refund_agreed"
	StatusRefundFailCheckRejected         LineStatus = "refund_fail_check_rejected"
	StatusRefundFailAgreeRejected         LineStatus = "refund_fail_agree_rejected"
	StatusRefundFailInspectRejected       LineStatus = "refund_fail_inspect_rejected"
	StatusRefundFailInspectRejectedDO     LineStatus = "refund_fail_inspect_rejected_do"
	StatusRefundFailInspectRejectedDD     LineStatus = "refund_fail_inspect_rejected_dd"
	StatusRefundFailReturnNo              LineStatus = "refund_fail_return_no"
	StatusRefundReturnOK                  LineStatus = "refund_return_ok"
	StatusRefundInspectPass               LineStatus = "refund_inspect_pass"
	StatusRefundFinishedNormal            LineStatus = "refund_finished_normal"
	StatusRefundFinishedOrderCanceled     LineStatus = "refund_finished_order_canceled"
	StatusRefundFinishedCanceledConfirmed LineStatus = "refund_finished_order_canceled_confirmed"
	StatusRefundFinishedCheckRejected     LineStatus = "refund_finished_check_rejected"
	StatusRefundFinishedShipRejected      LineStatus = "refund_finished_ship_rejected"
	StatusRefundIngOrderCanceled          LineStatus = "refund_ing_order_canceled"

	// Exchange claim
	StatusExchangeRequested             LineStatus = "exchange_requested"
	StatusExchangeChecked               LineStatus = "exchange_checked"
	StatusExchangeAgreed                LineStatus = "exchange_agreed"
	StatusExchangeFailCheckRejected     LineStatus = "exchange_fail_check_rejected"
	StatusExchangeFailAgreeRejected     LineStatus = "exchange_fail_agree_rejected"
	StatusExchangeFailInspectRejected   LineStatus = "exchange_fail_inspect_rejected"
	StatusExchangeFailInspectRejectedDO LineStatus = "exchange_fail_inspect_rejected_do"
	StatusExchangeFailInspectRejectedDD LineStatus = "exchange_fail_inspect_rejected_dd"
	StatusExchangeFailReshipRejected    LineStatus = "exchange_fail_reship_rejected"
	StatusExchangeFailReshipRejectedDO  LineStatus = "exchange_fail_reship_rejected_do"
	StatusExchangeFailReshipRejectedDD  LineStatus = "exchange_fail_reship_rejected_dd"
	StatusExchangeFailReturnNo          LineStatus = "exchange_fail_return_no"
	StatusExchangeReturnOK              LineStatus = "exchange_return_ok"
	StatusExchangeInspectPass           LineStatus = "exchange_inspect_pass"
	StatusExchangeReshipOK              LineStatus = "exchange_reship_ok"
	StatusExchangeReshipDelay           LineStatus = "exchange_reship_delay"
	StatusExchangeDeliveryIng           LineStatus = "exchange_delivery_ing"
	StatusExchangeDeliveryOK            LineStatus = "exchange_delivery_ok"
	StatusExchangeDeliveryDelay         LineStatus = "exchange_delivery_delay"
)

// statusTraits classifies one status. Adding a state means adding one row
// here instead of touching every membership check.
type statusTraits struct {
	// NotCountable removes the line from every PV and fee aggregation.
	NotCountable bool
	// Cancelable allows the marketplace-initiated cancellation path.
	Cancelable bool
	// StampsRequest refreshes request_status and its date on entry.
	StampsRequest bool
	// FinalizesPurchase stamps the purchase-finalized date on entry.
	FinalizesPurchase bool
	// ResetsReturnFeeMethod resets the return-fee responsibility to default.
	ResetsReturnFeeMethod bool
}

var statusTraitsTable = map[LineStatus]statusTraits{
	StatusUnselectedInCart: {NotCountable: true},

	StatusPaymentRequired:         {Cancelable: true, StampsRequest: true},
	StatusPaymentFailValidation:   {NotCountable: true},
	StatusPaymentFailInvalidTrial: {NotCountable: true},
	StatusPaymentFailTimeOut:      {NotCountable: true},
	StatusPaymentFailError:        {NotCountable: true},
	StatusPaymentFailPointError:   {NotCountable: true},

	StatusCheckRequired: {Cancelable: true, StampsRequest: true},
	StatusOrderFinished: {FinalizesPurchase: true},

	StatusRefundRequested:   {StampsRequest: true},
	StatusExchangeRequested: {StampsRequest: true},

	StatusRefundFailReturnNo:          {ResetsReturnFeeMethod: true},
	StatusRefundFailInspectRejectedDO: {ResetsReturnFeeMethod: true},
	StatusRefundFailAgreeRejected:     {ResetsReturnFeeMethod: true},

	StatusRefundFinishedNormal:            {NotCountable: true},
	StatusRefundFinishedOrderCanceled:     {NotCountable: true},
	StatusRefundFinishedCanceledConfirmed: {NotCountable: true},
	StatusRefundFinishedCheckRejected:     {NotCountable: true},
	StatusRefundFinishedShipRejected:      {NotCountable: true},
}

func (s LineStatus) traits() statusTraits {
	return statusTraitsTable[s]
}

// Countable reports whether a line in this status contributes to PV and
// delivery fee aggregation. Lines mid-claim stay countable: a return request
// does not un-charge anything until settlement completes.
func (s LineStatus) Countable() bool {
	return !s.traits().NotCountable
}

// Cancelable reports whether the marketplace-initiated cancel path accepts
// a line in this status.
func (s LineStatus) Cancelable() bool {
	return s.traits().Cancelable
}

// UpdateLineStatus transitions a line unconditionally and applies the
// attached effects. It returns the applied change; the caller must
// recalculate fees before reading any aggregate the line feeds into.
func (o *Order) UpdateLineStatus(lineID string, target LineStatus, now time.Time) *StatusChange {
	line, ok := o.Lines[lineID]
	if !ok {
		return nil
	}

	change := &StatusChange{
		LineID:     lineID,
		From:       line.Status,
		To:         target,
		OccurredAt: now,
		Countable:  target.Countable(),
	}
	line.Status = target

	traits := target.traits()
	if traits.StampsRequest {
		line.RequestStatus = target
		line.RequestStatusDate = &now
	}
	if traits.FinalizesPurchase {
		line.PurchaseFinalizedDate = &now
	}
	if traits.ResetsReturnFeeMethod {
		line.ReturnFeeMethod = ReturnFeeDefault
	}
	return change
}

// fastForwardSteps collapses two adjacent known-good transitions into one
// call for statuses whose intermediate step carries no decision.
var fastForwardSteps = map[LineStatus][]LineStatus{
	StatusShipOK:                      {StatusDeliveryIng, StatusDeliveryOK},
	StatusExchangeReshipOK:            {StatusExchangeDeliveryIng, StatusExchangeDeliveryOK},
	StatusExchangeFailInspectRejected: {StatusExchangeFailInspectRejectedDO},
	StatusExchangeFailReshipRejected:  {StatusExchangeFailReshipRejectedDO},
	StatusRefundFailInspectRejected:   {StatusRefundFailInspectRejectedDO},
}

// FastForward advances a line through its known-good follow-up transitions,
// one StatusChange per step.
func (o *Order) FastForward(lineID string, now time.Time) []*StatusChange {
	line, ok := o.Lines[lineID]
	if !ok {
		return nil
	}
	steps, ok := fastForwardSteps[line.Status]
	if !ok {
		return nil
	}
	changes := make([]*StatusChange, 0, len(steps))
	for _, next := range steps {
		if c := o.UpdateLineStatus(lineID, next, now); c != nil {
			changes = append(changes, c)
		}
	}
	return changes
}

// Carrier tracking milestone levels. Levels 2-5 mean the parcel is moving,
// level 6 means delivered.
const (
	trackingLevelInTransitMin = 2
	trackingLevelDelivered    = 6
)

var trackingInTransit = map[LineStatus]LineStatus{
	StatusShipOK:           StatusDeliveryIng,
	StatusExchangeReshipOK: StatusExchangeDeliveryIng,
}

var trackingDelivered = map[LineStatus]LineStatus{
	StatusDeliveryIng:                 StatusDeliveryOK,
	StatusExchangeDeliveryIng:         StatusExchangeDeliveryOK,
	StatusExchangeFailInspectRejected: StatusExchangeFailInspectRejectedDO,
	StatusRefundFailInspectRejected:   StatusRefundFailInspectRejectedDO,
}

// ApplyTrackingLevel turns a carrier milestone callback into a status
// transition. Levels outside the handled range, or lines not in a matching
// status, are ignored.
func (o *Order) ApplyTrackingLevel(lineID string, level int, now time.Time) *StatusChange {
	line, ok := o.Lines[lineID]
	if !ok {
		return nil
	}
	if level > line.TrackingLevel {
		line.TrackingLevel = level
	}

	var mapping map[LineStatus]LineStatus
	switch {
	case level == trackingLevelDelivered:
		mapping = trackingDelivered
	case level >= trackingLevelInTransitMin && level < trackingLevelDelivered:
		mapping = trackingInTransit
	default:
		return nil
	}
	target, ok := mapping[line.Status]
	if !ok {
		return nil
	}
	return o.UpdateLineStatus(lineID, target, now)
}

// Initiator types for the status audit trail.
const (
	InitiatorUser     = "user"
	InitiatorSupplier = "supplier"
	InitiatorChannel  = "channel"
	InitiatorSystem   = "system"
)

// StatusChange describes one applied transition.
type StatusChange struct {
	LineID     string
	From       LineStatus
	To         LineStatus
	Countable  bool
	Initiator  string
	OccurredAt time.Time
}

// StampInitiator records who drove a batch of transitions. The domain layer
// does not know the caller, so services stamp before persisting.
func StampInitiator(changes []*StatusChange, initiator string) {
	for _, c := range changes {
		c.Initiator = initiator
	}
}

// FlipsCountability reports whether the transition changed whether the line
// counts toward PV/fee aggregation.
func (c *StatusChange) FlipsCountability() bool {
	return c.From.Countable() != c.To.Countable()
}
