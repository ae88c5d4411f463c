package payment

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/shopspring/decimal"
)

// ResponseType names the operation a Response answers.
type ResponseType string

const (
	TypePing     ResponseType = "ping"
	TypeInit     ResponseType = "init"
	TypeUpdate   ResponseType = "update"
	TypeCharge   ResponseType = "charge"
	TypeRefund   ResponseType = "refund"
	TypeRetrieve ResponseType = "retrieve"
	TypeSync     ResponseType = "sync"
	TypeSave     ResponseType = "save"
	TypeDelete   ResponseType = "delete"
)

var responseTypes = map[ResponseType]struct{}{
	TypePing: {}, TypeInit: {}, TypeUpdate: {}, TypeCharge: {}, TypeRefund: {},
	TypeRetrieve: {}, TypeSync: {}, TypeSave: {}, TypeDelete: {},
}

// ParseResponseType rejects names outside the known operation set.
func ParseResponseType(name string) (ResponseType, error) {
	t := ResponseType(name)
	if _, ok := responseTypes[t]; !ok {
		return "", fmt.Errorf("`%s` is an unknown type", name)
	}
	return t, nil
}

// Response is the uniform result envelope of every provider operation.
// It is built fresh per call and never persisted.
type Response struct {
	Type           ResponseType
	Success        bool
	Message        string
	Errors         []string
	HTTPStatusCode int

	Transaction   *model.Transaction
	Customer      *model.ProviderCustomer
	PaymentMethod *model.ProviderPaymentMethod

	clientSideData map[string]interface{}
}

func NewResponse(typ ResponseType, success bool, message string, errs ...string) *Response {
	return &Response{Type: typ, Success: success, Message: message, Errors: errs}
}

// Fail marks the response failed with the given message and errors.
func (r *Response) Fail(message string, errs ...string) *Response {
	r.Success = false
	r.Message = message
	r.Errors = errs
	return r
}

func (r *Response) WithTransaction(t *model.Transaction) *Response {
	r.Transaction = t
	return r
}

// SetClientSideData attaches data meant for the paying client, e.g. a client secret.
func (r *Response) SetClientSideData(key string, val interface{}) {
	if r.clientSideData == nil {
		r.clientSideData = map[string]interface{}{}
	}
	r.clientSideData[key] = val
}

func (r *Response) ClientSideData() map[string]interface{} {
	if r.clientSideData == nil {
		return map[string]interface{}{}
	}
	return r.clientSideData
}

func (r *Response) HasError() bool { return len(r.Errors) > 0 }

// StatusCode is the explicit override, else 422 on failure and 200 on success.
func (r *Response) StatusCode() int {
	if r.HTTPStatusCode != 0 {
		return r.HTTPStatusCode
	}
	if !r.Success || r.HasError() {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}

type transactionView struct {
	ID          uint64 `json:"id"`
	PID         string `json:"pid"`
	OrderableID string `json:"orderable_id"`
	Refund      bool   `json:"refund"`
	Success     bool   `json:"success"`
	Status      string `json:"status"`
	Humans      string `json:"humans"`
	Amount      int64  `json:"amount"`
}

type customerView struct {
	PID                       string `json:"pid"`
	UserType                  string `json:"user_type"`
	UserID                    string `json:"user_id"`
	PaymentProvider           string `json:"payment_provider"`
	PaymentProviderCustomerID string `json:"payment_provider_customer_id"`
}

type responseView struct {
	Type           ResponseType                 `json:"type"`
	Success        bool                         `json:"success"`
	Message        string                       `json:"message"`
	Transaction    *transactionView             `json:"transaction"`
	Customer       *customerView                `json:"payment_provider_customer,omitempty"`
	PaymentMethod  *model.ProviderPaymentMethod `json:"payment_method,omitempty"`
	ClientSideData map[string]interface{}       `json:"client_side_data"`
	Errors         map[string][]string          `json:"errors"`
	HTTPStatusCode *int                         `json:"http_status_code"`
}

func (r *Response) MarshalJSON() ([]byte, error) {
	v := responseView{
		Type:           r.Type,
		Success:        r.Success,
		Message:        r.Message,
		PaymentMethod:  r.PaymentMethod,
		ClientSideData: r.ClientSideData(),
	}
	if r.HasError() {
		v.Errors = map[string][]string{"reason": r.Errors}
	}
	if r.HTTPStatusCode != 0 {
		code := r.HTTPStatusCode
		v.HTTPStatusCode = &code
	}
	if t := r.Transaction; t != nil {
		v.Transaction = &transactionView{
			ID:          t.ID,
			PID:         t.PID,
			OrderableID: t.OrderableID,
			Refund:      t.Refund,
			Success:     t.Success,
			Status:      t.Status,
			Humans:      FormatAmount(t.Amount, t.Currency),
			Amount:      t.Amount,
		}
	}
	if c := r.Customer; c != nil {
		v.Customer = &customerView{
			PID:                       c.PID,
			UserType:                  c.UserType,
			UserID:                    c.UserID,
			PaymentProvider:           c.PaymentProvider,
			PaymentProviderCustomerID: c.PaymentProviderCustomerID,
		}
	}
	return json.Marshal(v)
}

var zeroDecimalCurrencies = map[string]bool{
	"BIF": true, "CLP": true, "DJF": true, "GNF": true, "JPY": true, "KMF": true, "KRW": true,
	"MGA": true, "PYG": true, "RWF": true, "UGX": true, "VND": true, "VUV": true, "XAF": true,
	"XOF": true, "XPF": true,
}

// FormatAmount renders a minor-unit amount, e.g. 1050 gbp -> "10.50 GBP".
func FormatAmount(amount int64, currency string) string {
	code := strings.ToUpper(currency)
	exp := int32(2)
	if zeroDecimalCurrencies[code] {
		exp = 0
	}
	s := decimal.New(amount, -exp).StringFixed(exp)
	if code == "" {
		return s
	}
	return s + " " + code
}
