package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/alanyoungcy/polywatcher/internal/domain"
)

// flexFloat unmarshals from a JSON number or a string-encoded number. The
// CLOB API encodes sizes and prices as strings over HTTP but as numbers on
// some WebSocket payloads.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexFloat(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(n)
	return nil
}

// flexInt64 unmarshals from a JSON integer or a string-encoded integer.
// Empty strings and nulls decode to zero.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexInt64(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(n)
	return nil
}

// --------------------------------------------------------------------------
// User channel / trade history DTOs
// --------------------------------------------------------------------------

// MakerOrderMessage is one maker sub-allocation inside a trade payload.
type MakerOrderMessage struct {
	OrderID       string    `json:"order_id"`
	AssetID       string    `json:"asset_id"`
	MakerAddress  string    `json:"maker_address"`
	Owner         string    `json:"owner"`
	Outcome       string    `json:"outcome"`
	Side          string    `json:"side"`
	MatchedAmount flexFloat `json:"matched_amount"`
	Price         flexFloat `json:"price"`
	FeeRateBps    flexFloat `json:"fee_rate_bps"`
}

// TradeMessage is a matched fill as delivered on the user WebSocket channel
// and by the /data/trades endpoint. Both sources share this shape.
type TradeMessage struct {
	EventType       string              `json:"event_type"`
	Type            string              `json:"type"`
	ID              string              `json:"id"`
	AssetID         string              `json:"asset_id"`
	Market          string              `json:"market"`
	Outcome         string              `json:"outcome"`
	MakerAddress    string              `json:"maker_address"`
	Owner           string              `json:"owner"`
	TakerOrderID    string              `json:"taker_order_id"`
	TransactionHash string              `json:"transaction_hash"`
	Side            string              `json:"side"`
	Size            flexFloat           `json:"size"`
	Price           flexFloat           `json:"price"`
	FeeRateBps      flexFloat           `json:"fee_rate_bps"`
	Status          string              `json:"status"`
	MatchTime       flexInt64           `json:"match_time"`
	LastUpdate      flexInt64           `json:"last_update"`
	MakerOrders     []MakerOrderMessage `json:"maker_orders"`
}

// ToDomain converts the wire trade into the domain record.
func (m *TradeMessage) ToDomain() domain.Trade {
	makers := make([]domain.MakerOrder, 0, len(m.MakerOrders))
	for _, mo := range m.MakerOrders {
		makers = append(makers, domain.MakerOrder{
			OrderID:       mo.OrderID,
			AssetID:       mo.AssetID,
			Maker:         mo.MakerAddress,
			Owner:         mo.Owner,
			Outcome:       mo.Outcome,
			Side:          domain.Side(strings.ToUpper(mo.Side)),
			MatchedAmount: float64(mo.MatchedAmount),
			Price:         float64(mo.Price),
			FeeRateBps:    float64(mo.FeeRateBps),
		})
	}

	return domain.Trade{
		ID:           m.ID,
		AssetID:      m.AssetID,
		Market:       m.Market,
		Outcome:      m.Outcome,
		Maker:        m.MakerAddress,
		Owner:        m.Owner,
		TakerOrderID: m.TakerOrderID,
		Side:         domain.Side(strings.ToUpper(m.Side)),
		Size:         float64(m.Size),
		Price:        float64(m.Price),
		FeeRateBps:   float64(m.FeeRateBps),
		Status:       strings.ToUpper(m.Status),
		MatchTime:    int64(m.MatchTime),
		LastUpdate:   int64(m.LastUpdate),
		TxHash:       m.TransactionHash,
		MakerOrders:  makers,
	}
}

// OrderMessage is an order lifecycle event as delivered on the user
// WebSocket channel (type PLACEMENT, UPDATE, or CANCELLATION) and by the
// /data/order/{id} endpoint.
type OrderMessage struct {
	EventType    string    `json:"event_type"`
	Type         string    `json:"type"`
	ID           string    `json:"id"`
	AssetID      string    `json:"asset_id"`
	Market       string    `json:"market"`
	Outcome      string    `json:"outcome"`
	Owner        string    `json:"owner"`
	OrderOwner   string    `json:"order_owner"`
	Side         string    `json:"side"`
	OriginalSize flexFloat `json:"original_size"`
	SizeMatched  flexFloat `json:"size_matched"`
	Price        flexFloat `json:"price"`
	Status       string    `json:"status"`
	Timestamp    flexInt64 `json:"timestamp"` // unix milliseconds
}

// wsOrderCancellation is the user-channel event type for order cancellation.
const wsOrderCancellation = "CANCELLATION"

// ToDomain converts the wire order into the domain record. A CANCELLATION
// event forces status CANCELED regardless of the status field, which some
// payloads omit.
func (m *OrderMessage) ToDomain() domain.Order {
	status := domain.OrderStatus(strings.ToUpper(m.Status))
	if strings.EqualFold(m.Type, wsOrderCancellation) {
		status = domain.OrderStatusCanceled
	}
	if status == "" {
		status = domain.OrderStatusLive
	}

	o := domain.Order{
		ID:           m.ID,
		AssetID:      m.AssetID,
		Market:       m.Market,
		Owner:        m.Owner,
		Side:         domain.Side(strings.ToUpper(m.Side)),
		OriginalSize: float64(m.OriginalSize),
		SizeMatched:  float64(m.SizeMatched),
		Price:        float64(m.Price),
		Status:       status,
		Timestamp:    int64(m.Timestamp),
	}
	o.ComputeFilled()
	return o
}

// --------------------------------------------------------------------------
// Data API DTOs
// --------------------------------------------------------------------------

// APIPosition is one row of the data API's per-user position summary.
type APIPosition struct {
	Asset       string    `json:"asset"`
	ConditionID string    `json:"conditionId"`
	Outcome     string    `json:"outcome"`
	Size        flexFloat `json:"size"`
	AvgPrice    flexFloat `json:"avgPrice"`
}

// ToDomain converts the wire position row into the domain summary.
func (p *APIPosition) ToDomain() domain.PositionSummary {
	return domain.PositionSummary{
		AssetID:  p.Asset,
		Market:   p.ConditionID,
		Outcome:  p.Outcome,
		Size:     float64(p.Size),
		AvgPrice: float64(p.AvgPrice),
	}
}
