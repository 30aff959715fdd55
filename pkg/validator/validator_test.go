package validator

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type queryBody struct {
	Term  *string `json:"queryTerm" validate:"required"`
	Order string  `json:"order" validate:"omitempty,oneof=ASC DESC"`
	Size  *int    `json:"size" validate:"omitempty,gte=0,lte=1000"`
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func TestValidate_Success(t *testing.T) {
	err := Validate(queryBody{Term: strPtr("laptop"), Order: "ASC", Size: intPtr(10)})
	assert.NoError(t, err)
}

func TestValidate_EmptyTermIsPresent(t *testing.T) {
	err := Validate(queryBody{Term: strPtr("")})
	assert.NoError(t, err)
}

func TestValidate_MissingRequired_UsesJSONName(t *testing.T) {
	err := Validate(queryBody{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["queryTerm"])
	assert.Contains(t, err.Error(), "field 'queryTerm'")
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(queryBody{Term: strPtr("x"), Order: "RANDOM"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["order"], "one of")
}

func TestValidate_Range(t *testing.T) {
	err := Validate(queryBody{Term: strPtr("x"), Size: intPtr(-1)})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be greater than or equal to 0", valErr.Fields()["size"])

	err = Validate(queryBody{Term: strPtr("x"), Size: intPtr(5000)})
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["size"], "1000")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"queryTerm":"laptop","order":"DESC","size":20}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var b queryBody
	require.NoError(t, DecodeAndValidate(req, &b))
	assert.Equal(t, "laptop", *b.Term)
	assert.Equal(t, 20, *b.Size)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var b queryBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))

	var b queryBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	assert.Equal(t, "decode request body: body is empty", err.Error())
}

func TestDecodeAndValidate_TrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"queryTerm":"a"} {"queryTerm":"b"}`))

	var b queryBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected data after JSON document")
}

func TestDecodeAndValidate_BodyTooLarge(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"queryTerm":"`+strings.Repeat("x", 64)+`"}`))
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	var b queryBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "body exceeds 16 bytes")
}

func TestValidationError_StableMessage(t *testing.T) {
	err := Validate(queryBody{Order: "RANDOM", Size: intPtr(-1)})
	require.Error(t, err)

	assert.Equal(t,
		"field 'order' must be one of: ASC DESC; field 'queryTerm' is required; field 'size' must be greater than or equal to 0",
		err.Error())
}

type facetBody struct {
	Fields []string `json:"fields" validate:"min=1"`
	Name   string   `json:"name" validate:"max=3"`
}

func TestValidate_MinMaxUnits(t *testing.T) {
	err := Validate(facetBody{Name: "category"})

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be at least 1 items", valErr.Fields()["fields"])
	assert.Equal(t, "must be at most 3 characters", valErr.Fields()["name"])
}
