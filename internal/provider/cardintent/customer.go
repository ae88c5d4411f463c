package cardintent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/payment"
	"gorm.io/gorm"
)

func (p *CardIntent) Customer() payment.CustomerManager {
	return &customers{p: p}
}

func (p *CardIntent) PaymentMethod(cd model.CustomerData) payment.PaymentMethodManager {
	return &paymentMethods{p: p, cd: cd}
}

// ledgerCustomer returns the linked customer, nil when there is none.
func (p *CardIntent) ledgerCustomer(ctx context.Context, cd model.CustomerData) (*model.ProviderCustomer, error) {
	r := p.Ledger().Repo()
	c, err := r.FindCustomer(ctx, r.DB(ctx), p.Tenant(), Name, cd)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find customer %s/%s: %w", cd.UserType, cd.UserID, err)
	}
	return c, nil
}

type customers struct {
	p *CardIntent
}

func (m *customers) Has(ctx context.Context, cd model.CustomerData) (bool, error) {
	c, err := m.Get(ctx, cd)
	return c != nil, err
}

func (m *customers) Get(ctx context.Context, cd model.CustomerData) (*model.ProviderCustomer, error) {
	if cd.IsGuest() {
		return nil, nil
	}
	return m.p.ledgerCustomer(ctx, cd)
}

// Create links cd to a new gateway customer. An existing link is returned as is.
func (m *customers) Create(ctx context.Context, cd model.CustomerData, data map[string]interface{}) *payment.Response {
	resp := payment.NewResponse(payment.TypeSave, false, "")
	if cd.IsGuest() {
		return resp.Fail("Customer could not be created", "Guests cannot be saved")
	}
	existing, err := m.Get(ctx, cd)
	if err != nil {
		return resp.Fail("Customer could not be created", err.Error())
	}
	if existing != nil {
		resp.Success = true
		resp.Customer = existing
		return resp
	}

	gw, err := m.p.gateway()
	if err != nil {
		return resp.Fail("Customer could not be created", err.Error())
	}
	gc, err := gw.CreateCustomer(ctx, CustomerParams{
		Email: cd.Email,
		Name:  strings.TrimSpace(cd.FirstName + " " + cd.LastName),
		Phone: cd.Phone,
		Metadata: map[string]string{
			"tenant_id": m.p.Tenant(),
			"user_type": cd.UserType,
			"user_id":   cd.UserID,
		},
	})
	if err != nil {
		return resp.Fail("Customer could not be created", err.Error())
	}

	c := &model.ProviderCustomer{
		TenantID:                  m.p.Tenant(),
		PaymentProvider:           Name,
		PaymentProviderCustomerID: gc.ID,
		UserType:                  cd.UserType,
		UserID:                    cd.UserID,
	}
	r := m.p.Ledger().Repo()
	if err := r.CreateCustomer(ctx, r.DB(ctx), c); err != nil {
		m.p.Log().Errorf("gateway customer %s created but not stored: %v", gc.ID, err)
		return resp.Fail("Customer could not be created", err.Error())
	}
	resp.Success = true
	resp.Customer = c
	return resp
}

// Delete removes the gateway customer, then the local link and its methods.
func (m *customers) Delete(ctx context.Context, cd model.CustomerData) *payment.Response {
	resp := payment.NewResponse(payment.TypeDelete, false, "")
	c, err := m.Get(ctx, cd)
	if err != nil {
		return resp.Fail("Customer could not be deleted", err.Error())
	}
	if c == nil {
		return resp.Fail("Customer not found", "Customer not found")
	}
	gw, err := m.p.gateway()
	if err != nil {
		return resp.Fail("Customer could not be deleted", err.Error())
	}
	if err := gw.DeleteCustomer(ctx, c.PaymentProviderCustomerID); err != nil {
		return resp.Fail("Customer could not be deleted", err.Error())
	}
	r := m.p.Ledger().Repo()
	if err := r.DeleteCustomer(ctx, r.DB(ctx), c.ID); err != nil {
		return resp.Fail("Customer could not be deleted", err.Error())
	}
	resp.Success = true
	resp.Customer = c
	return resp
}
