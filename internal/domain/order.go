package domain

// OrderStatus tracks the order lifecycle as reported by the exchange.
type OrderStatus string

const (
	OrderStatusLive      OrderStatus = "LIVE"
	OrderStatusMatched   OrderStatus = "MATCHED"
	OrderStatusDelayed   OrderStatus = "DELAYED"
	OrderStatusUnmatched OrderStatus = "UNMATCHED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
)

// filledTolerance is the absolute size tolerance (in units, not relative)
// under which an order counts as fully filled. Exchange fee math can leave
// the matched size a fraction short of the original size.
const filledTolerance = 0.5

// Order is the latest known state of one order's lifecycle. Records are
// created on first sighting and updated in place on every accepted event;
// canceled orders stay visible with status CANCELED.
type Order struct {
	ID           string
	AssetID      string
	Market       string
	Owner        string
	Side         Side
	OriginalSize float64
	SizeMatched  float64
	Price        float64
	Status       OrderStatus
	Timestamp    int64 // unix milliseconds, 0 when the source omits it
	Filled       bool
}

// Supersedes reports whether o carries newer information than prev. Order
// payloads may lack reliable timestamps, so newer is defined as a strictly
// larger matched size or a different status.
func (o Order) Supersedes(prev Order) bool {
	return o.SizeMatched > prev.SizeMatched || o.Status != prev.Status
}

// ComputeFilled derives the Filled flag from the matched and original sizes.
func (o *Order) ComputeFilled() {
	diff := o.SizeMatched - o.OriginalSize
	if diff < 0 {
		diff = -diff
	}
	o.Filled = diff < filledTolerance
}
