package cardintent

import (
	"context"
	"errors"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"gorm.io/gorm"
)

type paymentMethods struct {
	p  *CardIntent
	cd model.CustomerData
}

// customer returns the linked customer, creating it on first use.
func (m *paymentMethods) customer(ctx context.Context) (*model.ProviderCustomer, *payment.Response) {
	resp := m.p.Customer().Create(ctx, m.cd, nil)
	if !resp.Success {
		return nil, resp
	}
	return resp.Customer, nil
}

// Init starts a setup intent so the client can collect a new card.
func (m *paymentMethods) Init(ctx context.Context, data map[string]interface{}) *payment.Response {
	resp := payment.NewResponse(payment.TypeInit, false, "")
	c, failed := m.customer(ctx)
	if failed != nil {
		return resp.Fail(failed.Message, failed.Errors...)
	}
	gw, err := m.p.gateway()
	if err != nil {
		return resp.Fail("Payment method could not be initialised", err.Error())
	}
	si, err := gw.CreateSetupIntent(ctx, c.PaymentProviderCustomerID)
	if err != nil {
		return resp.Fail("Payment method could not be initialised", err.Error())
	}
	resp.Success = true
	resp.Customer = c
	resp.SetClientSideData("client_secret", si.ClientSecret)
	resp.SetClientSideData("publishable_key", m.p.publishableKey())
	return resp
}

// Save attaches data["payment_method_id"] to the customer and stores it.
func (m *paymentMethods) Save(ctx context.Context, data map[string]interface{}) *payment.Response {
	resp := payment.NewResponse(payment.TypeSave, false, "")
	id, _ := data["payment_method_id"].(string)
	if id == "" {
		return resp.Fail("Payment method could not be saved", "payment_method_id is required")
	}
	c, failed := m.customer(ctx)
	if failed != nil {
		return resp.Fail(failed.Message, failed.Errors...)
	}
	gw, err := m.p.gateway()
	if err != nil {
		return resp.Fail("Payment method could not be saved", err.Error())
	}
	gpm, err := gw.AttachPaymentMethod(ctx, id, c.PaymentProviderCustomerID)
	if err != nil {
		return resp.Fail("Payment method could not be saved", err.Error())
	}
	pm, err := m.p.upsertPaymentMethod(ctx, c, gpm)
	if err != nil {
		return resp.Fail("Payment method could not be saved", err.Error())
	}
	resp.Success = true
	resp.Customer = c
	resp.PaymentMethod = pm
	return resp
}

func (m *paymentMethods) Remove(ctx context.Context, paymentMethodID string) *payment.Response {
	resp := payment.NewResponse(payment.TypeDelete, false, "")
	r := m.p.Ledger().Repo()
	pm, err := r.FindPaymentMethod(ctx, r.DB(ctx), Name, paymentMethodID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return resp.Fail("Payment method not found", "Payment method not found")
	}
	if err != nil {
		return resp.Fail("Payment method could not be removed", err.Error())
	}
	c, err := m.p.ledgerCustomer(ctx, m.cd)
	if err != nil || c == nil || c.ID != pm.PaymentProviderCustomerID {
		return resp.Fail("Payment method not found", "Payment method does not belong to customer")
	}
	gw, err := m.p.gateway()
	if err != nil {
		return resp.Fail("Payment method could not be removed", err.Error())
	}
	if err := gw.DetachPaymentMethod(ctx, paymentMethodID); err != nil {
		return resp.Fail("Payment method could not be removed", err.Error())
	}
	if err := r.DeletePaymentMethod(ctx, r.DB(ctx), pm.ID); err != nil {
		return resp.Fail("Payment method could not be removed", err.Error())
	}
	resp.Success = true
	resp.PaymentMethod = pm
	return resp
}

// SyncAll refreshes every stored method of the customer from the gateway.
func (m *paymentMethods) SyncAll(ctx context.Context) bool {
	c, err := m.p.ledgerCustomer(ctx, m.cd)
	if err != nil || c == nil {
		return false
	}
	gw, err := m.p.gateway()
	if err != nil {
		return false
	}
	r := m.p.Ledger().Repo()
	stored, err := r.ListPaymentMethods(ctx, r.DB(ctx), c.ID)
	if err != nil {
		return false
	}
	for _, pm := range stored {
		gpm, err := gw.GetPaymentMethod(ctx, pm.PaymentProviderPaymentMethodID)
		if err != nil {
			m.p.Log().Warnf("sync payment method %s: %v", pm.PaymentProviderPaymentMethodID, err)
			return false
		}
		if _, err := m.p.upsertPaymentMethod(ctx, c, gpm); err != nil {
			return false
		}
	}
	return true
}

// upsertPaymentMethod stores gpm under customer c.
func (p *CardIntent) upsertPaymentMethod(ctx context.Context, c *model.ProviderCustomer, gpm *GatewayPaymentMethod) (*model.ProviderPaymentMethod, error) {
	r := p.Ledger().Repo()
	pm, err := r.FindPaymentMethod(ctx, r.DB(ctx), Name, gpm.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pm = &model.ProviderPaymentMethod{
			TenantID:                       c.TenantID,
			PaymentProvider:                Name,
			PaymentProviderPaymentMethodID: gpm.ID,
		}
	} else if err != nil {
		return nil, err
	}
	pm.PaymentProviderCustomerID = c.ID
	pm.Type = gpm.Type
	pm.Brand = gpm.Brand
	pm.CountryCode = gpm.Country
	pm.LastFour = gpm.LastFour
	pm.ExpiresAtMonth = gpm.ExpMonth
	pm.ExpiresAtYear = gpm.ExpYear
	pm.Livemode = p.IsLivemode()
	if err := r.SavePaymentMethod(ctx, r.DB(ctx), pm); err != nil {
		return nil, err
	}
	return pm, nil
}
