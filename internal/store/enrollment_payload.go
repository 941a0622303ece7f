package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/budgetlink/budgetlink-service/internal/domain"
)

type payloadKind int

const (
	payloadAbsent payloadKind = iota
	payloadSingle
	payloadList
)

// EnrollmentPayload is the decoded wire form of a user's enrollments column.
// It is either absent, a Single JSON-encoded string, or a List whose items are
// enrollment objects or JSON-encoded strings.
type EnrollmentPayload struct {
	kind   payloadKind
	single string
	items  []json.RawMessage
}

// DecodeEnrollmentPayload classifies a raw enrollments value. A bare object is
// accepted as a one-item list.
func DecodeEnrollmentPayload(raw json.RawMessage) (EnrollmentPayload, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return EnrollmentPayload{kind: payloadAbsent}, nil
	}

	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return EnrollmentPayload{}, fmt.Errorf("decode enrollments string: %w", err)
		}
		return EnrollmentPayload{kind: payloadSingle, single: s}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return EnrollmentPayload{}, fmt.Errorf("decode enrollments list: %w", err)
		}
		return EnrollmentPayload{kind: payloadList, items: items}, nil
	case '{':
		return EnrollmentPayload{kind: payloadList, items: []json.RawMessage{trimmed}}, nil
	default:
		return EnrollmentPayload{}, fmt.Errorf("unsupported enrollments value %q", truncate(trimmed, 32))
	}
}

// Enrollments flattens the payload into enrollment objects. Entries that fail to
// parse are skipped and reported through the returned error slice.
func (p EnrollmentPayload) Enrollments() ([]domain.Enrollment, []error) {
	switch p.kind {
	case payloadSingle:
		inner := bytes.TrimSpace([]byte(p.single))
		if len(inner) > 0 && inner[0] == '[' {
			var items []json.RawMessage
			if err := json.Unmarshal(inner, &items); err != nil {
				return nil, []error{fmt.Errorf("parse enrollments string: %w", err)}
			}
			return parseItems(items)
		}
		e, err := parseItem(inner)
		if err != nil {
			return nil, []error{err}
		}
		return []domain.Enrollment{e}, nil
	case payloadList:
		return parseItems(p.items)
	default:
		return nil, nil
	}
}

// NormalizeEnrollments decodes any supported wire shape into a flat list.
func NormalizeEnrollments(raw json.RawMessage) ([]domain.Enrollment, []error) {
	payload, err := DecodeEnrollmentPayload(raw)
	if err != nil {
		return nil, []error{err}
	}
	return payload.Enrollments()
}

// EncodeEnrollments produces the canonical stored form: a JSON array of objects.
func EncodeEnrollments(enrollments []domain.Enrollment) (json.RawMessage, error) {
	if enrollments == nil {
		enrollments = []domain.Enrollment{}
	}
	b, err := json.Marshal(enrollments)
	if err != nil {
		return nil, fmt.Errorf("encode enrollments: %w", err)
	}
	return b, nil
}

func parseItems(items []json.RawMessage) ([]domain.Enrollment, []error) {
	var (
		out  []domain.Enrollment
		errs []error
	)
	for i, item := range items {
		e, err := parseItem(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("enrollment %d: %w", i, err))
			continue
		}
		out = append(out, e)
	}
	return out, errs
}

func parseItem(item json.RawMessage) (domain.Enrollment, error) {
	trimmed := bytes.TrimSpace(item)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return domain.Enrollment{}, err
		}
		trimmed = bytes.TrimSpace([]byte(s))
	}

	var e domain.Enrollment
	if err := json.Unmarshal(trimmed, &e); err != nil {
		return domain.Enrollment{}, err
	}
	return e, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
