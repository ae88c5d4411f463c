package payment

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponseType(t *testing.T) {
	typ, err := ParseResponseType("refund")
	require.NoError(t, err)
	assert.Equal(t, TypeRefund, typ)

	_, err = ParseResponseType("capture")
	assert.EqualError(t, err, "`capture` is an unknown type")
}

func TestResponse_StatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, NewResponse(TypeInit, true, "").StatusCode())
	assert.Equal(t, http.StatusUnprocessableEntity, NewResponse(TypeInit, false, "").StatusCode())
	assert.Equal(t, http.StatusUnprocessableEntity, NewResponse(TypeInit, true, "", "boom").StatusCode())

	forbidden := NewResponse(TypeCharge, false, "Access denied")
	forbidden.HTTPStatusCode = http.StatusForbidden
	assert.Equal(t, http.StatusForbidden, forbidden.StatusCode())
}

func TestResponse_MarshalJSON(t *testing.T) {
	resp := NewResponse(TypeCharge, true, "Charged").WithTransaction(&model.Transaction{
		ID: 7, PID: "p-7", OrderableID: "o1", Success: true, Status: "success", Amount: 1050, Currency: "gbp",
	})
	resp.SetClientSideData("client_secret", "cs_1")

	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, "charge", out["type"])
	assert.Equal(t, true, out["success"])
	assert.Nil(t, out["errors"])
	assert.Nil(t, out["http_status_code"])
	assert.Equal(t, map[string]interface{}{"client_secret": "cs_1"}, out["client_side_data"])

	tx := out["transaction"].(map[string]interface{})
	assert.Equal(t, "10.50 GBP", tx["humans"])
	assert.Equal(t, float64(1050), tx["amount"])
	assert.Equal(t, "o1", tx["orderable_id"])

	failed, err := json.Marshal(NewResponse(TypeRefund, false, "Invalid refund", "Refund was invalid"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"refund","success":false,"message":"Invalid refund","transaction":null,
		"client_side_data":{},"errors":{"reason":["Refund was invalid"]},"http_status_code":null}`, string(failed))
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "10.00 GBP", FormatAmount(1000, "gbp"))
	assert.Equal(t, "0.05 EUR", FormatAmount(5, "EUR"))
	assert.Equal(t, "1000 JPY", FormatAmount(1000, "jpy"))
	assert.Equal(t, "-5.00", FormatAmount(-500, ""))
}
