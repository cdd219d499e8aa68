package models

// Requests for feed HTTP endpoints. Defined in domain for consistency and reuse.

type PriceRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Category string `query:"category" json:"category" default:"crypto" validate:"oneof=crypto forex commodity stock"`
}

type RoundPriceRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Category string `query:"category" json:"category" default:"crypto" validate:"oneof=crypto forex commodity stock"`
	Round    int64  `query:"round" json:"round" validate:"gte=0"`
}

type QualityRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Category string `query:"category" json:"category" default:"crypto" validate:"oneof=crypto forex commodity stock"`
}

type StreamRequest struct {
	Symbol   string `query:"symbol" json:"symbol" validate:"required"`
	Category string `query:"category" json:"category" default:"crypto" validate:"oneof=crypto forex commodity stock"`
}
