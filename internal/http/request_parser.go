// Package http provides the JSON API over the record store.
//
// This file implements utilities for parsing request bodies and query
// strings into ledger inputs.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gastos/internal/core"

	"github.com/shopspring/decimal"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser handles different content types for request body parsing.
// It supports both JSON and form-encoded data.
type RequestBodyParser struct {
	body        []byte
	contentType string
	jsonData    map[string]interface{}
	formData    url.Values
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
// It reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	if r.Body != nil {
		p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	}
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	body := strings.TrimSpace(string(p.body))
	if body == "" {
		p.formData = url.Values{}
		return nil
	}

	if body[0] == '{' {
		p.jsonData = make(map[string]interface{})
		if err := json.Unmarshal([]byte(body), &p.jsonData); err != nil {
			p.jsonData = nil
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(body)
	return p.err
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

// stringValue converts a decoded JSON value to string.
func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// sanitizeInput removes control characters except tab and newlines, and
// trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// ParseMovementInput builds the input of a new movement for user. A malformed
// amount is reported as a validation error before the store is involved.
func ParseMovementInput(p *RequestBodyParser, user string) (core.MovementInput, error) {
	in := core.MovementInput{
		User:        user,
		Timestamp:   p.Get("timestamp"),
		Description: p.Get("description"),
		Category:    p.Get("category"),
		Kind:        core.Kind(p.Get("kind")),
		Amount:      decimal.Zero,
	}
	raw := p.Get("amount")
	if raw == "" {
		return in, &core.ValidationError{Field: "amount", Reason: "is required", Err: core.ErrInvalidAmount}
	}
	amount, err := core.ParseAmount(raw)
	if err != nil {
		return in, &core.ValidationError{Field: "amount", Reason: "must be a positive number", Err: err}
	}
	in.Amount = amount
	return in, nil
}

// ParseMovementFilter reads from, to, category and kind from a query string.
// category and kind may repeat or hold comma-separated values.
func ParseMovementFilter(query url.Values) core.MovementFilter {
	f := core.MovementFilter{
		From: strings.TrimSpace(query.Get("from")),
		To:   strings.TrimSpace(query.Get("to")),
	}
	f.Categories = listValues(query["category"])
	for _, k := range listValues(query["kind"]) {
		f.Kinds = append(f.Kinds, core.ParseKind(k))
	}
	return f
}

func listValues(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if s := sanitizeInput(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
