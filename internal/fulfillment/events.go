package fulfillment

import "github.com/alekseev-bro/sagas/pkg/saga"

// Streams carrying the events this saga reacts to. Each stream name doubles as
// the aggregate kind of its events.
const (
	Orders    = "orders"
	Inventory = "inventory"
	Payments  = "payments"
	Shipping  = "shipping"

	idKind = "uuid"
)

var (
	OrderPlacedType     = saga.EventType{Kind: "OrderPlaced", AggregateKind: Orders, IDKind: idKind}
	StockReservedType   = saga.EventType{Kind: "StockReserved", AggregateKind: Inventory, IDKind: idKind}
	StockRejectedType   = saga.EventType{Kind: "StockRejected", AggregateKind: Inventory, IDKind: idKind}
	PaymentCapturedType = saga.EventType{Kind: "PaymentCaptured", AggregateKind: Payments, IDKind: idKind}
	PaymentDeclinedType = saga.EventType{Kind: "PaymentDeclined", AggregateKind: Payments, IDKind: idKind}
	OrderShippedType    = saga.EventType{Kind: "OrderShipped", AggregateKind: Shipping, IDKind: idKind}
)

type Line struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
}

type OrderPlaced struct {
	OrderID string `json:"order_id"`
	Lines   []Line `json:"lines"`
	Amount  int64  `json:"amount"`
	Address string `json:"address"`
}

type StockReserved struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id"`
}

type StockRejected struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type PaymentCaptured struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type PaymentDeclined struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type OrderShipped struct {
	OrderID    string `json:"order_id"`
	TrackingID string `json:"tracking_id"`
}

type ReserveStock struct {
	OrderID string `json:"order_id"`
	Lines   []Line `json:"lines"`
}

func (ReserveStock) Kind() string { return "ReserveStock" }

type ReleaseStock struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id"`
}

func (ReleaseStock) Kind() string { return "ReleaseStock" }

type CapturePayment struct {
	OrderID string `json:"order_id"`
	Amount  int64  `json:"amount"`
}

func (CapturePayment) Kind() string { return "CapturePayment" }

type ShipOrder struct {
	OrderID string `json:"order_id"`
	Address string `json:"address"`
}

func (ShipOrder) Kind() string { return "ShipOrder" }

type CancelOrder struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

func (CancelOrder) Kind() string { return "CancelOrder" }
