package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// UnknownInstitution is reported when an enrollment carries no institution name.
const UnknownInstitution = "Unknown institution"

// Institution identifies the bank behind an enrollment.
type Institution struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// EnrollmentDetail is the nested "enrollment" object of a Teller Connect payload.
type EnrollmentDetail struct {
	ID          string       `json:"id,omitempty"`
	Institution *Institution `json:"institution,omitempty"`
}

// Enrollment is the payload handed over by the aggregator's linking flow.
// The original JSON is kept so the record can be stored and echoed verbatim.
type Enrollment struct {
	AccessToken string            `json:"accessToken"`
	Enrollment  *EnrollmentDetail `json:"enrollment,omitempty"`
	Institution *Institution      `json:"institution,omitempty"`

	raw json.RawMessage
}

var errEnrollmentNotObject = errors.New("enrollment must be a JSON object")

// UnmarshalJSON decodes an enrollment object and retains its raw form.
func (e *Enrollment) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return errEnrollmentNotObject
	}

	type plain Enrollment
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*e = Enrollment(p)
	e.raw = append(json.RawMessage(nil), trimmed...)
	return nil
}

// MarshalJSON emits the enrollment exactly as it was received.
func (e Enrollment) MarshalJSON() ([]byte, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	type plain Enrollment
	return json.Marshal(plain(e))
}

// Raw returns the stored JSON form of the enrollment.
func (e Enrollment) Raw() (json.RawMessage, error) {
	return e.MarshalJSON()
}

// HasAccessToken reports whether the enrollment can be used against the aggregator.
func (e Enrollment) HasAccessToken() bool {
	return strings.TrimSpace(e.AccessToken) != ""
}

// InstitutionName prefers the nested enrollment descriptor over the top-level one.
func (e Enrollment) InstitutionName() string {
	if e.Enrollment != nil && e.Enrollment.Institution != nil && e.Enrollment.Institution.Name != "" {
		return e.Enrollment.Institution.Name
	}
	if e.Institution != nil && e.Institution.Name != "" {
		return e.Institution.Name
	}
	return UnknownInstitution
}
