// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing monetary amounts from strings
// and checking them against the ledger rules. All arithmetic uses
// shopspring/decimal so long histories never drift.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// AmountScale is the number of fractional digits an amount may carry.
	AmountScale = 2
	// MaxAmountDigits bounds the integer digits of any amount or balance.
	MaxAmountDigits = 15
	// maxAmountInput bounds the raw text handed to the decimal parser.
	maxAmountInput = 64
)

// maxAmount is the exclusive upper bound on |amount|.
var maxAmount = decimal.New(1, MaxAmountDigits)

// ParseAmount converts a decimal string to an exact amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators. Unlike
// ParseSignedAmount, the result must be strictly positive and carry at most
// two fractional digits.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,34") -> 12.34, nil
//	ParseAmount("0")     -> 0, ErrInvalidAmount
//	ParseAmount("1.005") -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := ParseSignedAmount(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseSignedAmount parses a decimal that may be zero or negative, as used
// for initial balances.
func ParseSignedAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > maxAmountInput {
		return decimal.Zero, ErrInvalidAmount
	}
	// Exponent notation would let a short input expand to billions of digits.
	if strings.ContainsAny(s, "eE") {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if err := ValidateBalance(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ValidateBalance enforces the amount range and scale without a sign rule,
// as used for initial balances.
func ValidateBalance(d decimal.Decimal) error {
	if !inRange(d) || !hasScale(d) {
		return ErrInvalidAmount
	}
	return nil
}

// ValidateAmount enforces amount > 0 with at most AmountScale fractional
// digits and fewer than MaxAmountDigits+1 integer digits.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	return ValidateBalance(d)
}

// inRange checks the exponent before comparing so an oversized value is
// never rescaled.
func inRange(d decimal.Decimal) bool {
	if d.Exponent() > MaxAmountDigits {
		return false
	}
	return d.Abs().LessThan(maxAmount)
}

func hasScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(AmountScale))
}

// Sum adds amounts exactly.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
