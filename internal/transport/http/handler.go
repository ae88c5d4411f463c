package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/richardliu001/payment-ledger/internal/config"
	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// orderReq is the orderable a request pays for.
type orderReq struct {
	ID    string              `json:"id" binding:"required"`
	Total int64               `json:"amount" binding:"min=0"`
	Cur   string              `json:"currency" binding:"required,len=3"`
	Desc  string              `json:"description"`
	Buyer *model.CustomerData `json:"customer"`
}

func (o *orderReq) Key() string { return o.ID }

func (o *orderReq) Amount() int64 { return o.Total }

func (o *orderReq) Currency() string { return o.Cur }

func (o *orderReq) Customer() *model.CustomerData { return o.Buyer }

func (o *orderReq) Description() string { return o.Desc }

type initReq struct {
	Order          orderReq               `json:"order"`
	Amount         *int64                 `json:"amount"`
	TransactionPID string                 `json:"transaction_pid"`
	Data           map[string]interface{} `json:"data"`
}

type chargeReq struct {
	Order          *orderReq              `json:"order"`
	TransactionPID string                 `json:"transaction_pid"`
	Data           map[string]interface{} `json:"data"`
}

type refundReq struct {
	TransactionPID string `json:"transaction_pid" binding:"required"`
	Amount         *int64 `json:"amount"`
	Description    string `json:"description"`
}

type syncReq struct {
	TransactionPID string `json:"transaction_pid" binding:"required"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// open prepares the provider named in the path for the request's tenant.
func open(c *gin.Context, d Deps, order payment.Orderable) (*payment.Session, bool) {
	opts := payment.Options{
		Provider: c.Param("provider"),
		Tenant:   c.GetString(tenantKey),
	}
	if order != nil {
		opts.Order = order
	}
	s, err := d.Payments.Open(c.Request.Context(), opts)
	switch {
	case errors.Is(err, payment.ErrUnknownProvider), errors.Is(err, config.ErrProviderNotConfigured):
		errorJSON(c, http.StatusNotFound, err)
		return nil, false
	case err != nil:
		errorJSON(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return s, true
}

// lookup loads a transaction of the request's tenant by public id. An empty
// pid yields nil without error.
func lookup(c *gin.Context, d Deps, pid string) (*model.Transaction, bool) {
	if pid == "" {
		return nil, true
	}
	t, err := d.Ledger.GetByPID(c.Request.Context(), pid)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && t.TenantID != c.GetString(tenantKey)) {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return nil, false
	}
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return nil, false
	}
	return t, true
}

// respond writes the envelope, or a 500 for infrastructure failures. A
// mismatch error still carries its envelope; the session has logged it.
func respond(c *gin.Context, log *zap.SugaredLogger, resp *payment.Response, err error) {
	var merr *payment.MismatchError
	switch {
	case errors.As(err, &merr):
		c.JSON(merr.Response.StatusCode(), merr.Response)
	case err != nil:
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		errorJSON(c, http.StatusInternalServerError, err)
	case resp == nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no response"})
	default:
		c.JSON(resp.StatusCode(), resp)
	}
}

func pingHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := open(c, d, nil)
		if !ok {
			return
		}
		resp := s.Ping(c.Request.Context())
		c.JSON(resp.StatusCode(), resp)
	}
}

func initHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		suggested, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		s, ok := open(c, d, &req.Order)
		if !ok {
			return
		}
		resp, err := s.Init(c.Request.Context(), req.Amount, req.Data, suggested)
		respond(c, log, resp, err)
	}
}

func cashierInitHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		suggested, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		s, ok := open(c, d, &req.Order)
		if !ok {
			return
		}
		resp, err := s.CashierInit(c.Request.Context(), c.GetString(cashierKey), req.Amount, req.Data, suggested)
		respond(c, log, resp, err)
	}
}

func chargeHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chargeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		if req.TransactionPID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "transaction_pid is required"})
			return
		}
		t, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		var order payment.Orderable
		if req.Order != nil {
			order = req.Order
		}
		s, ok := open(c, d, order)
		if !ok {
			return
		}
		resp, err := s.Charge(c.Request.Context(), t, req.Data)
		respond(c, log, resp, err)
	}
}

func cashierChargeHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req chargeReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		t, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		if t == nil && req.Order == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "order or transaction_pid is required"})
			return
		}
		var order payment.Orderable
		if req.Order != nil {
			order = req.Order
		}
		s, ok := open(c, d, order)
		if !ok {
			return
		}
		resp, err := s.CashierCharge(c.Request.Context(), c.GetString(cashierKey), t, req.Data)
		respond(c, log, resp, err)
	}
}

func refundHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req refundReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		t, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		s, ok := open(c, d, nil)
		if !ok {
			return
		}
		resp, err := s.Refund(c.Request.Context(), c.GetString(cashierKey), t, req.Amount, req.Description)
		respond(c, log, resp, err)
	}
}

func syncHandler(d Deps, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req syncReq
		if err := c.ShouldBindJSON(&req); err != nil {
			errorJSON(c, http.StatusBadRequest, err)
			return
		}
		t, ok := lookup(c, d, req.TransactionPID)
		if !ok {
			return
		}
		s, ok := open(c, d, nil)
		if !ok {
			return
		}
		resp, err := s.Sync(c.Request.Context(), t)
		respond(c, log, resp, err)
	}
}

func totalPaidHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		livemode, err := strconv.ParseBool(c.DefaultQuery("livemode", "false"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid livemode"})
			return
		}
		tenant := c.GetString(tenantKey)
		total, err := d.Ledger.TotalPaid(c.Request.Context(), tenant, c.Param("id"), livemode)
		if err != nil {
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"tenant_id":    tenant,
			"orderable_id": c.Param("id"),
			"livemode":     livemode,
			"total_paid":   total,
		})
	}
}

type historyItem struct {
	model.Transaction
	State       payment.State       `json:"state"`
	RefundState payment.RefundState `json:"refund_state"`
}

func historyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := d.Ledger.History(c.Request.Context(), c.GetString(tenantKey), c.Param("id"))
		if err != nil {
			errorJSON(c, http.StatusInternalServerError, err)
			return
		}
		items := make([]historyItem, 0, len(rows))
		for i := range rows {
			items = append(items, historyItem{
				Transaction: rows[i],
				State:       payment.StateOf(&rows[i]),
				RefundState: payment.RefundStateOf(&rows[i]),
			})
		}
		c.JSON(http.StatusOK, gin.H{"transactions": items})
	}
}
