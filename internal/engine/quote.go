package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Quote struct {
	ID              uuid.UUID       `json:"id"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	AvailableVolume uint64          `json:"available_volume"`
	ExpirationDate  time.Time       `json:"expiration_date"`
}

// Live reports whether the quote can still be matched at now.
func (q Quote) Live(now time.Time) bool {
	return q.AvailableVolume > 0 && q.ExpirationDate.After(now)
}

// Fill is the volume taken from a single quote during one execution.
type Fill struct {
	QuoteID uuid.UUID       `json:"quote_id"`
	Price   decimal.Decimal `json:"price"`
	Volume  uint64          `json:"volume"`
}

type TradeResult struct {
	ID                         uuid.UUID       `json:"id"`
	Symbol                     string          `json:"symbol"`
	VolumeRequested            uint64          `json:"volume_requested"`
	VolumeExecuted             uint64          `json:"volume_executed"`
	VolumeWeightedAveragePrice decimal.Decimal `json:"volume_weighted_average_price"`
	Fills                      []Fill          `json:"fills"`
	ExecutedAt                 time.Time       `json:"executed_at"`
}

// Unfilled is the part of the request that found no liquidity.
func (r TradeResult) Unfilled() uint64 {
	return r.VolumeRequested - r.VolumeExecuted
}
