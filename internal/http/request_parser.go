// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Amounts travel as decimal strings but JSON numbers are accepted too; both
// are parsed exactly, never through float64.

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

	"github.com/shopspring/decimal"

	"dinero/internal/core"
)

const (
	maxBodyBytes = 1 << 20

	// IdempotencyKeyHeader lets clients retry a create safely.
	IdempotencyKeyHeader = "Idempotency-Key"
	maxIdempotencyKeyLen = 128

	dateLayout = "2006-01-02"
)

// Amount is a monetary amount as sent by clients: a JSON string such as
// "12.34" or a bare JSON number.
type Amount string

// UnmarshalJSON keeps the literal digits of numbers so no precision is lost.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("amount must be a string or number")
		}
		*a = Amount(n.String())
	}
	return nil
}

// Decimal parses the amount. Empty amounts are invalid; the sign is checked
// by the service layer so validation order stays intact.
func (a Amount) Decimal() (decimal.Decimal, error) {
	return core.ParseSignedAmount(string(a))
}

// ID is a source id that clients may send as a number or a numeric string.
type ID int64

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = 0
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("id must be an integer")
	}
	*id = ID(n)
	return nil
}

type createSourceRequest struct {
	Name           string `json:"name"`
	InitialBalance Amount `json:"initial_balance"`
}

type createTransactionRequest struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	SourceID    ID     `json:"source_id"`
	Date        string `json:"date"`
}

type createTransferRequest struct {
	FromSourceID ID     `json:"from_source_id"`
	ToSourceID   ID     `json:"to_source_id"`
	Amount       Amount `json:"amount"`
	Description  string `json:"description"`
	Date         string `json:"date"`
}

// invalidRequest wraps a client-side problem as core.ErrInvalidRequest.
func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a single JSON object from the request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return invalidRequest("request body is empty")
		case errors.As(err, &maxErr):
			return invalidRequest("request body exceeds %d bytes", maxErr.Limit)
		default:
			return invalidRequest("malformed JSON: %v", err)
		}
	}
	if dec.More() {
		return invalidRequest("request body must hold a single JSON object")
	}
	return nil
}

// parseDate accepts RFC 3339 timestamps or plain YYYY-MM-DD dates, the
// latter at midnight UTC. An empty value yields the zero time, meaning now.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, invalidRequest("date %q must be RFC 3339 or YYYY-MM-DD", s)
}

// parseAsOf reads the optional as_of query parameter.
func parseAsOf(query url.Values) (*time.Time, error) {
	v := strings.TrimSpace(query.Get("as_of"))
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, err
	}
	if len(v) == len(dateLayout) {
		// A bare date means the end of that day.
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// pathID parses a positive integer path parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidRequest("%s %q is not a valid id", name, raw)
	}
	return id, nil
}

// queryID parses an optional positive integer query parameter; absent
// means zero.
func queryID(query url.Values, name string) (int64, error) {
	raw := strings.TrimSpace(query.Get(name))
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalidRequest("%s %q is not a valid id", name, raw)
	}
	return id, nil
}

// idempotencyKey reads the optional Idempotency-Key header.
func idempotencyKey(r *http.Request) (string, error) {
	key := sanitizeInput(r.Header.Get(IdempotencyKeyHeader))
	if len(key) > maxIdempotencyKeyLen {
		return "", invalidRequest("%s exceeds %d characters", IdempotencyKeyHeader, maxIdempotencyKeyLen)
	}
	return key, nil
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims surrounding whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
