package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/retroquest/storefront-backend/pkg/errors"
	"github.com/retroquest/storefront-backend/pkg/pagination"
)

func TestSanitizeStringKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "Cartucho São", SanitizeString("  Cartucho São\x00 ", 0))
	assert.Equal(t, "Cartucho S", SanitizeString("Cartucho São Paulo", 11), "cut lands inside ã")
	assert.Equal(t, "line one\nline two", SanitizeString("line one\nline two\r", 100))
	assert.Equal(t, "abc", SanitizeString("abcdef", 3))
}

func TestNormalizeTrackingCode(t *testing.T) {
	assert.Equal(t, "BR123456789BR", NormalizeTrackingCode(" br 123-456-789 br ", 64))
	assert.Equal(t, "BR12", NormalizeTrackingCode("br12345", 4))
}

func TestParsePageParams(t *testing.T) {
	params, err := ParsePageParams(httptest.NewRequest("GET", "/api/admin/orders?page=3&limit=10", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: 10, Page: 3}, params)

	params, err = ParsePageParams(httptest.NewRequest("GET", "/api/orders/my-orders?cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, pagination.Params{Limit: pagination.DefaultLimit, Cursor: "abc"}, params)

	for _, query := range []string{"?page=0", "?page=x", "?limit=101", "?page=2&cursor=abc"} {
		_, err := ParsePageParams(httptest.NewRequest("GET", "/api/admin/orders"+query, nil))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), query)
	}
}

type shippingAddress struct {
	ZipCode string `json:"zip_code" validate:"required,len=9"`
}

type checkoutBody struct {
	PaymentMethod   string          `json:"payment_method" validate:"required,oneof=credit_card pix boleto"`
	ShippingAddress shippingAddress `json:"shipping_address"`
}

func decodeDetails(t *testing.T, body string) (map[string]string, *pkgerrors.Error) {
	t.Helper()
	var dest checkoutBody
	err := DecodeJSONBody(httptest.NewRecorder(), httptest.NewRequest("POST", "/api/checkout", strings.NewReader(body)), &dest)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, _ := typed.Details().(map[string]string)
	return details, typed
}

func TestDecodeJSONBodyReportsNestedJSONPaths(t *testing.T) {
	details, _ := decodeDetails(t, `{"payment_method":"cash","shipping_address":{"zip_code":"123"}}`)
	assert.Equal(t, "must be one of: credit_card, pix, boleto", details["payment_method"])
	assert.Equal(t, "must have length 9", details["shipping_address.zip_code"])
}

func TestDecodeJSONBodyRejectsMalformedBodies(t *testing.T) {
	_, typed := decodeDetails(t, ``)
	assert.Equal(t, "request body is empty", typed.Message())

	_, typed = decodeDetails(t, `{"payment_method":"pix","shipping_address":{"zip_code":"50000-000"}} {}`)
	assert.Equal(t, "request body must hold a single JSON object", typed.Message())

	_, typed = decodeDetails(t, `{"payment_method":"pix","coupon":"x"}`)
	assert.Equal(t, "invalid request body", typed.Message())

	details, _ := decodeDetails(t, `{"payment_method":7}`)
	assert.Equal(t, "must be string", details["payment_method"])

	_, typed = decodeDetails(t, `{"payment_method":"`+strings.Repeat("p", MaxBodyBytes)+`"}`)
	assert.Equal(t, "request body too large", typed.Message())
}

func TestDecodeJSONBodyAcceptsValidPayload(t *testing.T) {
	var dest checkoutBody
	body := `{"payment_method":"pix","shipping_address":{"zip_code":"50000-000"}}`
	require.NoError(t, DecodeJSONBody(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader(body)), &dest))
	assert.Equal(t, "50000-000", dest.ShippingAddress.ZipCode)
}

func TestParseQueryBool(t *testing.T) {
	got, err := ParseQueryBool(httptest.NewRequest("GET", "/x?unread=TRUE", nil), "unread")
	require.NoError(t, err)
	assert.True(t, got)

	got, err = ParseQueryBool(httptest.NewRequest("GET", "/x", nil), "unread")
	require.NoError(t, err)
	assert.False(t, got)

	_, err = ParseQueryBool(httptest.NewRequest("GET", "/x?unread=yes", nil), "unread")
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Equal(t, map[string]any{"field": "unread"}, pkgerrors.As(err).Details())
}
