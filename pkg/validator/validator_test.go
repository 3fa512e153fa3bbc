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

type categoryBody struct {
	Category string `json:"category" validate:"required,max=200"`
	Count    int    `json:"count" validate:"min=1,max=100"`
}

type runBody struct {
	Categories     []categoryBody `json:"categories" validate:"required,min=1,max=10,dive"`
	ReferenceImage string         `json:"referenceImage" validate:"imagedatauri"`
}

func validBody() runBody {
	return runBody{Categories: []categoryBody{{Category: "Chairs", Count: 2}}}
}

func TestValidate_Success(t *testing.T) {
	assert.NoError(t, Validate(validBody()))
}

func TestValidate_MissingRequired(t *testing.T) {
	err := Validate(runBody{})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "is required", fields["categories"])
}

func TestValidate_TooManyItems(t *testing.T) {
	b := runBody{}
	for i := 0; i < 11; i++ {
		b.Categories = append(b.Categories, categoryBody{Category: "Lamps", Count: 1})
	}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must contain at most 10 items", valErr.Fields()["categories"])
}

func TestValidate_NestedFieldPath(t *testing.T) {
	b := runBody{Categories: []categoryBody{
		{Category: "Chairs", Count: 1},
		{Category: "Tables", Count: 101},
	}}
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be at most 100", fields["categories[1].count"])
	assert.NotContains(t, fields, "categories[0].count")
}

func TestValidate_ReferenceImage(t *testing.T) {
	b := validBody()
	b.ReferenceImage = "https://example.com/a.png"
	err := Validate(b)
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be an image data URI", valErr.Fields()["referenceImage"])

	b.ReferenceImage = "data:image/png;base64,iVBORw0KGgo="
	assert.NoError(t, Validate(b))
}

func TestValidationError_ErrorString(t *testing.T) {
	err := Validate(runBody{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "field 'categories'")
	assert.Contains(t, err.Error(), "is required")
}

type minMaxStruct struct {
	Short string `validate:"min=3"`
	Long  string `validate:"max=5"`
}

func TestValidate_MinMaxStrings(t *testing.T) {
	err := Validate(minMaxStruct{Short: "ab", Long: "toolongstring"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	fields := valErr.Fields()
	assert.Equal(t, "must be at least 3 characters", fields["Short"])
	assert.Equal(t, "must be at most 5 characters", fields["Long"])
}

type uuidStruct struct {
	ID string `validate:"uuid"`
}

func TestValidate_UUID(t *testing.T) {
	err := Validate(uuidStruct{ID: "not-a-uuid"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "must be a valid UUID", valErr.Fields()["ID"])

	assert.NoError(t, Validate(uuidStruct{ID: "550e8400-e29b-41d4-a716-446655440000"}))
}

type oneofStruct struct {
	Status string `json:"status" validate:"oneof=pending running completed failed"`
}

func TestValidate_OneOf(t *testing.T) {
	err := Validate(oneofStruct{Status: "deleted"})
	require.Error(t, err)

	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields()["status"], "one of")
}

func TestDecodeAndValidate_Success(t *testing.T) {
	body := `{"categories":[{"category":"Chairs","count":2}]}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var b runBody
	err := DecodeAndValidate(req, &b)

	require.NoError(t, err)
	require.Len(t, b.Categories, 1)
	assert.Equal(t, "Chairs", b.Categories[0].Category)
	assert.Equal(t, 2, b.Categories[0].Count)
}

func TestDecodeAndValidate_InvalidJSON(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{invalid"))

	var b runBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode request body")
}

func TestDecodeAndValidate_ValidationFails(t *testing.T) {
	body := `{"categories":[{"category":"","count":0}]}`
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))

	var b runBody
	err := DecodeAndValidate(req, &b)

	require.Error(t, err)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields(), "categories[0].category")
	assert.Contains(t, valErr.Fields(), "categories[0].count")
}
