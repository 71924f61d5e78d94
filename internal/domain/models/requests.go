package models

// Requests for the dashboard HTTP endpoints.

type PlaceOrderRequest struct {
	Symbol   string  `json:"symbol" validate:"required"`
	Side     string  `json:"side" validate:"required,oneof=buy sell"`
	Quantity float64 `json:"quantity" default:"1" validate:"gt=0"`
}

type SelectInstrumentRequest struct {
	Symbol string `json:"symbol" validate:"required"`
}

type ListTradesRequest struct {
	Limit int    `query:"limit" json:"limit" default:"50" validate:"gte=1,lte=1000"`
	From  string `query:"from" json:"from,omitempty"`
	To    string `query:"to" json:"to,omitempty"`
}

type SignalsRequest struct {
	Symbol string `query:"symbol" json:"symbol,omitempty"`
}
