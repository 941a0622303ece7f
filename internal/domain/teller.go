/**
 * @description
 * Models for the Teller banking-data API. Accounts and transactions are never
 * persisted; they are fetched on every read and enriched before being returned.
 */
package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	UnknownAccountName = "Unknown Account"
	UnknownAccountType = "Unknown Type"
)

// Account is a bank account reachable through an enrollment.
type Account struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Type         string       `json:"type"`
	Subtype      string       `json:"subtype,omitempty"`
	Currency     string       `json:"currency,omitempty"`
	LastFour     string       `json:"last_four,omitempty"`
	Status       string       `json:"status,omitempty"`
	EnrollmentID string       `json:"enrollment_id,omitempty"`
	Institution  *Institution `json:"institution,omitempty"`
}

// Transaction is a single account transaction as returned by Teller. The
// upstream object is kept verbatim; Institution, AccountName and AccountType are
// filled in by the aggregation engine and merged into it on encoding.
type Transaction struct {
	ID          string `json:"id"`
	AccountID   string `json:"account_id"`
	Date        string `json:"date"`
	Description string `json:"description"`
	// Amount is the signed amount exactly as Teller sent it, e.g. "-4.50".
	Amount string `json:"amount"`
	Status string `json:"status,omitempty"`
	Type   string `json:"type,omitempty"`

	Institution string `json:"institution"`
	AccountName string `json:"accountName"`
	AccountType string `json:"accountType"`

	raw json.RawMessage
}

var errTransactionNotObject = errors.New("transaction must be a JSON object")

// UnmarshalJSON reads the fields the engine needs and keeps the whole object.
// Field values of an unexpected type are read as empty rather than failing.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errTransactionNotObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return err
	}
	*t = Transaction{
		ID:          textValue(fields["id"]),
		AccountID:   textValue(fields["account_id"]),
		Date:        textValue(fields["date"]),
		Description: textValue(fields["description"]),
		Amount:      textValue(fields["amount"]),
		Status:      textValue(fields["status"]),
		Type:        textValue(fields["type"]),
		raw:         append(json.RawMessage(nil), trimmed...),
	}
	return nil
}

// MarshalJSON emits the upstream object with the enrichment keys set on top.
func (t Transaction) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		type plain Transaction
		return json.Marshal(plain(t))
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(t.raw, &fields); err != nil {
		return nil, err
	}
	for key, value := range map[string]string{
		"institution": t.Institution,
		"accountName": t.AccountName,
		"accountType": t.AccountType,
	} {
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		fields[key] = encoded
	}
	return json.Marshal(fields)
}

// AmountValue parses Amount as a decimal.
func (t Transaction) AmountValue() (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(t.Amount))
}

// textValue returns a JSON string's contents or a scalar's literal text.
func textValue(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[':
		return ""
	default:
		return string(raw)
	}
}

var transactionDateLayouts = []string{"2006-01-02", time.RFC3339, time.RFC3339Nano}

// ParsedDate returns the transaction date as a time, and false if it cannot be parsed.
func (t Transaction) ParsedDate() (time.Time, bool) {
	for _, layout := range transactionDateLayouts {
		if ts, err := time.Parse(layout, t.Date); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
