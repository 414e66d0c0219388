// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"fintrack/internal/core"
)

// maxBodyBytes bounds request bodies; a transaction is a few hundred bytes.
const maxBodyBytes = 16 << 10

var (
	errBodyTooLarge  = errors.New("request body too large")
	errMalformedBody = errors.New("malformed request body")
)

// ReportParams holds the period and kind selected by query parameters.
type ReportParams struct {
	Period core.Period
	Kind   core.Kind
}

// ParseReportParams reads ?period= and ?kind=. An unknown period means
// all time and an unknown kind means expense.
func ParseReportParams(query url.Values) ReportParams {
	params := ReportParams{
		Period: core.ParsePeriod(query.Get("period")),
		Kind:   core.Expense,
	}
	if k, err := core.ParseKind(query.Get("kind")); err == nil {
		params.Kind = k
	}
	return params
}

// ParseFilters reads the listing filters ?category=, ?type=, ?startDate=
// and ?endDate=. Empty parameters are unconstrained; malformed ones are
// validation errors.
func ParseFilters(query url.Values) (core.Filters, error) {
	var f core.Filters
	f.Category = sanitizeInput(query.Get("category"))
	if v := query.Get("type"); v != "" {
		k, err := core.ParseKind(v)
		if err != nil {
			return core.Filters{}, err
		}
		f.Kind = k
	}
	for _, d := range []struct {
		name string
		dst  *core.Date
	}{
		{"startDate", &f.StartDate},
		{"endDate", &f.EndDate},
	} {
		v := query.Get(d.name)
		if v == "" {
			continue
		}
		parsed, err := core.ParseDate(v)
		if err != nil {
			return core.Filters{}, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = parsed
	}
	if !f.StartDate.IsZero() && !f.EndDate.IsZero() && f.StartDate.After(f.EndDate.Time) {
		return core.Filters{}, fmt.Errorf("%w: startDate after endDate", core.ErrInvalidDate)
	}
	return f, nil
}

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

// NewRequestBodyParser reads at most maxBodyBytes of the request body.
func NewRequestBodyParser(r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if p.err == nil && len(p.body) > maxBodyBytes {
		p.err = errBodyTooLarge
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

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		// Keep amounts as written instead of going through float64.
		dec.UseNumber()
		p.jsonData = make(map[string]interface{})
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = fmt.Errorf("%w: %v", errMalformedBody, err)
			return p.err
		}
		return nil
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = fmt.Errorf("%w: %v", errMalformedBody, err)
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitized string value from the parsed data.
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

func stringValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// ParseTransaction builds a transaction from a create request. The date
// defaults to the calendar day of now; the kind may be sent as "type" or "kind".
func ParseTransaction(p *RequestBodyParser, now time.Time) (core.Transaction, error) {
	if err := p.Parse(); err != nil {
		return core.Transaction{}, err
	}

	rawKind := p.Get("type")
	if rawKind == "" {
		rawKind = p.Get("kind")
	}
	kind, err := core.ParseKind(rawKind)
	if err != nil {
		return core.Transaction{}, err
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.Transaction{}, err
	}

	date := core.NewDate(now.Year(), int(now.Month()), now.Day())
	if v := p.Get("date"); v != "" {
		if date, err = core.ParseDate(v); err != nil {
			return core.Transaction{}, err
		}
	}

	t := core.Transaction{
		Kind:        kind,
		Category:    p.Get("category"),
		Amount:      amount,
		Date:        date,
		Description: p.Get("description"),
	}
	return t, t.Validate()
}

// sanitizeInput strips control characters other than tab and newlines
// and trims whitespace.
func sanitizeInput(s string) string {
	return stripControl(strings.TrimSpace(s))
}

// stripControl drops control characters other than tab and line breaks and
// leaves everything else, surrounding spaces included, untouched.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
