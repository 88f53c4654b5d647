// Package fulfillment is an order saga: a placed order reserves stock, then
// captures payment, then ships. A rejection or decline compensates what was
// done so far and cancels the order.
package fulfillment

import (
	"context"

	"github.com/alekseev-bro/sagas/pkg/saga"
)

const Kind = "order-fulfillment"

type Status string

const (
	StatusReserving Status = "reserving"
	StatusCharging  Status = "charging"
	StatusShipping  Status = "shipping"
	StatusShipped   Status = "shipped"
	StatusCancelled Status = "cancelled"
)

// Data is the persisted state of one fulfillment.
type Data struct {
	OrderID       string `json:"order_id"`
	Lines         []Line `json:"lines"`
	Amount        int64  `json:"amount"`
	Address       string `json:"address"`
	ReservationID string `json:"reservation_id,omitempty"`
	PaymentID     string `json:"payment_id,omitempty"`
	TrackingID    string `json:"tracking_id,omitempty"`
	Status        Status `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

func byOrder(id string) (saga.ID, error) {
	return saga.ID(id), nil
}

// New returns the fulfillment saga definition.
func New() *saga.Saga[Data] {
	s := saga.NewSaga[Data](Kind)

	saga.On(s, OrderPlacedType,
		func(_ context.Context, e *OrderPlaced) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *OrderPlaced) error {
			*sc.Data = Data{
				OrderID: e.OrderID,
				Lines:   e.Lines,
				Amount:  e.Amount,
				Address: e.Address,
				Status:  StatusReserving,
			}
			return sc.Send(saga.Address{AggregateKind: Inventory, AggregateID: e.OrderID},
				ReserveStock{OrderID: e.OrderID, Lines: e.Lines})
		},
		saga.Starts())

	saga.On(s, StockReservedType,
		func(_ context.Context, e *StockReserved) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *StockReserved) error {
			sc.Data.ReservationID = e.ReservationID
			sc.Data.Status = StatusCharging
			return sc.Send(saga.Address{AggregateKind: Payments, AggregateID: e.OrderID},
				CapturePayment{OrderID: e.OrderID, Amount: sc.Data.Amount})
		})

	saga.On(s, StockRejectedType,
		func(_ context.Context, e *StockRejected) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *StockRejected) error {
			return cancel(sc, e.Reason)
		})

	saga.On(s, PaymentCapturedType,
		func(_ context.Context, e *PaymentCaptured) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *PaymentCaptured) error {
			sc.Data.PaymentID = e.PaymentID
			sc.Data.Status = StatusShipping
			return sc.Send(saga.Address{AggregateKind: Shipping, AggregateID: e.OrderID},
				ShipOrder{OrderID: e.OrderID, Address: sc.Data.Address})
		})

	saga.On(s, PaymentDeclinedType,
		func(_ context.Context, e *PaymentDeclined) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *PaymentDeclined) error {
			if err := sc.Send(saga.Address{AggregateKind: Inventory, AggregateID: sc.Data.OrderID},
				ReleaseStock{OrderID: sc.Data.OrderID, ReservationID: sc.Data.ReservationID}); err != nil {
				return err
			}
			return cancel(sc, e.Reason)
		})

	saga.On(s, OrderShippedType,
		func(_ context.Context, e *OrderShipped) (saga.ID, error) { return byOrder(e.OrderID) },
		func(_ context.Context, sc *saga.Scope[Data], e *OrderShipped) error {
			sc.Data.TrackingID = e.TrackingID
			sc.Data.Status = StatusShipped
			sc.Complete()
			return nil
		})

	return s
}

func cancel(sc *saga.Scope[Data], reason string) error {
	sc.Data.Status = StatusCancelled
	sc.Data.Reason = reason
	sc.Complete()
	return sc.Send(saga.Address{AggregateKind: Orders, AggregateID: sc.Data.OrderID},
		CancelOrder{OrderID: sc.Data.OrderID, Reason: reason})
}
