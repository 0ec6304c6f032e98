// Package validation checks request shapes once at the HTTP boundary.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// FieldError 描述单个字段的校验失败。
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Errors collects every failed field of one request.
type Errors []FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

// Validator accumulates field errors.
type Validator struct {
	errs Errors
}

// Add records a failure for field.
func (v *Validator) Add(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}

// Check records message when ok is false.
func (v *Validator) Check(ok bool, field, message string) {
	if !ok {
		v.Add(field, message)
	}
}

// Required rejects blank strings.
func (v *Validator) Required(field, value string) {
	v.Check(strings.TrimSpace(value) != "", field, "is required")
}

// MaxLength counts runes, not bytes.
func (v *Validator) MaxLength(field, value string, limit int) {
	v.Check(utf8.RuneCountInString(value) <= limit, field, fmt.Sprintf("must be at most %d characters", limit))
}

// Email accepts an empty value; use Required to make it mandatory.
func (v *Validator) Email(field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	v.Check(err == nil && addr.Address == value, field, "must be a valid email address")
}

// Range checks an optional number against [lo, hi].
func (v *Validator) Range(field string, value *float64, lo, hi float64) {
	if value == nil {
		return
	}
	v.Check(*value >= lo && *value <= hi, field, fmt.Sprintf("must be between %g and %g", lo, hi))
}

// OneOf checks that a non-empty value is one of allowed.
func (v *Validator) OneOf(field, value string, allowed ...string) {
	if value == "" {
		return
	}
	for _, candidate := range allowed {
		if strings.EqualFold(value, candidate) {
			return
		}
	}
	v.Add(field, "must be one of: "+strings.Join(allowed, ", "))
}

// Valid reports whether no errors were recorded.
func (v *Validator) Valid() bool {
	return len(v.errs) == 0
}

// Err returns the collected Errors, or nil.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return v.errs
}
