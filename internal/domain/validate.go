package domain

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// ValidationResult is returned instead of an error so forms can render
// inline field messages without unwrapping.
type ValidationResult struct {
	IsValid         bool    `json:"isValid"`
	NormalizedValue float64 `json:"normalizedValue,omitempty"`
	Error           string  `json:"error,omitempty"`
}

var (
	saleValuePattern   = regexp.MustCompile(`^[\d.,]+$`)
	transactionPattern = regexp.MustCompile(`^[a-zA-Z0-9]{4,64}$`)
)

// ValidateSaleValue checks a raw amount as typed by a vendor. Only digits,
// dots and commas are allowed; a comma is treated as a decimal separator.
func ValidateSaleValue(value string) ValidationResult {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ValidationResult{Error: "sale value is required"}
	}
	if !saleValuePattern.MatchString(trimmed) {
		return ValidationResult{Error: "only digits, dots and commas are allowed"}
	}

	normalized := strings.Replace(trimmed, ",", ".", 1)
	amount, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return ValidationResult{Error: "invalid number format"}
	}
	if amount <= 0 {
		return ValidationResult{Error: "sale value must be greater than 0"}
	}
	return ValidationResult{IsValid: true, NormalizedValue: amount}
}

// ValidateEvidenceValue checks an evidence value against its declared
// type. Unknown types pass: evidence types are admin-managed reference
// data and new ones carry no format constraint.
func ValidateEvidenceValue(evidenceType string, value string) ValidationResult {
	if strings.TrimSpace(value) == "" {
		return ValidationResult{Error: "evidence value is required when a type is selected"}
	}

	switch evidenceType {
	case "url":
		u, err := url.Parse(value)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return ValidationResult{Error: "invalid URL format"}
		}
		return ValidationResult{IsValid: true}
	case "transaction_number":
		if !transactionPattern.MatchString(value) {
			return ValidationResult{Error: "transaction number must be 4-64 alphanumeric characters"}
		}
		return ValidationResult{IsValid: true}
	default:
		return ValidationResult{IsValid: true}
	}
}
