// Package models defines the off-chain records that on-chain transfers are
// reconciled against.
//
// Records reference each other by string IDs rather than pointers. Money is
// carried as decimal.Decimal; prediction-market probabilities and share
// counts are float64.
package models
