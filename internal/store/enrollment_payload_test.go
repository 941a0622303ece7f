package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	chaseEnrollment = `{"accessToken":"token_chase","enrollment":{"id":"enr_1","institution":{"name":"Chase"}}}`
	wfEnrollment    = `{"accessToken":"token_wf","institution":{"name":"Wells Fargo"}}`
)

func quote(t *testing.T, s string) string {
	t.Helper()
	b, err := json.Marshal(s)
	require.NoError(t, err)
	return string(b)
}

func TestNormalizeEnrollments_AllShapesAgree(t *testing.T) {
	listOfStrings := "[" + quote(t, chaseEnrollment) + "," + quote(t, wfEnrollment) + "]"

	tests := []struct {
		name string
		raw  string
	}{
		{name: "array of objects", raw: "[" + chaseEnrollment + "," + wfEnrollment + "]"},
		{name: "array of strings", raw: listOfStrings},
		{name: "mixed array", raw: "[" + chaseEnrollment + "," + quote(t, wfEnrollment) + "]"},
		{name: "single string holding array", raw: quote(t, "["+chaseEnrollment+","+wfEnrollment+"]")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, errs := NormalizeEnrollments(json.RawMessage(tt.raw))
			assert.Empty(t, errs)
			require.Len(t, got, 2)
			assert.Equal(t, "token_chase", got[0].AccessToken)
			assert.Equal(t, "Chase", got[0].InstitutionName())
			assert.Equal(t, "token_wf", got[1].AccessToken)
			assert.Equal(t, "Wells Fargo", got[1].InstitutionName())
		})
	}
}

func TestNormalizeEnrollments_SingleStringObject(t *testing.T) {
	got, errs := NormalizeEnrollments(json.RawMessage(quote(t, chaseEnrollment)))
	assert.Empty(t, errs)
	require.Len(t, got, 1)
	assert.Equal(t, "token_chase", got[0].AccessToken)
}

func TestNormalizeEnrollments_Absent(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		got, errs := NormalizeEnrollments(json.RawMessage(raw))
		assert.Empty(t, errs, "raw=%q", raw)
		assert.Empty(t, got, "raw=%q", raw)
	}
}

func TestNormalizeEnrollments_DropsMalformedEntries(t *testing.T) {
	raw := "[" + chaseEnrollment + `,"not json",42,` + quote(t, `{"accessToken":`) + "]"

	got, errs := NormalizeEnrollments(json.RawMessage(raw))
	require.Len(t, got, 1)
	assert.Equal(t, "token_chase", got[0].AccessToken)
	assert.Len(t, errs, 3)
}

func TestNormalizeEnrollments_LegacyDefaultValue(t *testing.T) {
	got, errs := NormalizeEnrollments(json.RawMessage(`"default"`))
	assert.Empty(t, got)
	assert.Len(t, errs, 1)
}

func TestNormalizeEnrollments_UnsupportedScalar(t *testing.T) {
	got, errs := NormalizeEnrollments(json.RawMessage(`true`))
	assert.Empty(t, got)
	assert.Len(t, errs, 1)
}

func TestEncodeEnrollments_PreservesRawPayload(t *testing.T) {
	raw := `{"accessToken":"tok","signatures":["abc"],"user":{"id":"usr_1"}}`
	got, errs := NormalizeEnrollments(json.RawMessage("[" + raw + "]"))
	require.Empty(t, errs)

	encoded, err := EncodeEnrollments(got)
	require.NoError(t, err)
	assert.JSONEq(t, "["+raw+"]", string(encoded))

	empty, err := EncodeEnrollments(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))
}
