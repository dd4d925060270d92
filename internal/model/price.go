package model

import "time"

// PricePoint is a single immutable price sample from the oracle.
type PricePoint struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}
