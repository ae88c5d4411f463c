package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBase_AuthoriseChecksOwnershipFirst(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	p.SetLivemode(false)

	cases := []struct {
		name    string
		tx      *model.Transaction
		err     error
		message string
	}{
		{"own same mode", &model.Transaction{PaymentProvider: "stub"}, nil, ""},
		{"own other mode", &model.Transaction{PaymentProvider: "stub", Livemode: true}, ErrLivemodeMismatch, MsgLivemodeMismatch},
		{"foreign same mode", &model.Transaction{PaymentProvider: "cash"}, ErrWrongProvider, MsgUnauthorised},
		{"foreign other mode", &model.Transaction{PaymentProvider: "cash", Livemode: true}, ErrWrongProvider, MsgUnauthorised},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := p.Authorise(c.tx)
			if c.err == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, c.err)
			assert.Equal(t, c.message, AuthorisationMessage(err))
		})
	}
}

func TestBase_ValidateRefund(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	tx := &model.Transaction{PaymentProvider: "stub", Amount: 1000, AmountRefunded: -400}

	assert.True(t, p.ValidateRefund(tx, 600))
	assert.False(t, p.ValidateRefund(tx, 601))
	tx.PaymentProvider = "cash"
	assert.False(t, p.ValidateRefund(tx, 1))
	assert.True(t, p.IsRefundable())
	assert.True(t, p.IsCancelable(tx))
}

func TestBase_CustomerDataFallsBackToOrder(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	assert.Nil(t, p.CustomerData())

	orderCustomer := &model.CustomerData{UserType: "user", UserID: "1"}
	p.SetOrder(&testutil.Order{ID: "o1", CustomerData: orderCustomer})
	assert.Same(t, orderCustomer, p.CustomerData())

	explicit := &model.CustomerData{UserType: "user", UserID: "2"}
	p.SetCustomerData(explicit)
	assert.Same(t, explicit, p.CustomerData())
}

func TestBase_InitTransaction(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	p.Configure(map[string]string{"k": "v"}, true)
	p.SetTenant("7")
	p.SetOrder(&testutil.Order{ID: "o1", Total: 1000, CurrencyCode: "gbp", CustomerData: &model.CustomerData{UserType: "user", UserID: "3"}})

	fresh := p.InitTransaction(nil, nil)
	assert.Equal(t, "o1", fresh.OrderableID)
	assert.Equal(t, int64(1000), fresh.OrderableAmount)
	assert.Equal(t, "gbp", fresh.Currency)
	assert.Equal(t, "7", fresh.TenantID)
	assert.Equal(t, "stub", fresh.PaymentProvider)
	assert.True(t, fresh.Livemode)
	assert.Equal(t, model.LocalStatusInit, fresh.LocalStatus)
	assert.False(t, fresh.Success)
	require.NotNil(t, fresh.UserID)
	assert.Equal(t, "3", *fresh.UserID)

	amount := int64(250)
	suggested := &model.Transaction{ID: 5, OrderableID: "o1", LocalStatus: model.LocalStatusInit}
	reused := p.InitTransaction(&amount, suggested)
	assert.Same(t, suggested, reused)
	assert.Equal(t, int64(250), reused.OrderableAmount)

	foreign := &model.Transaction{ID: 6, OrderableID: "o2"}
	assert.NotSame(t, foreign, p.InitTransaction(nil, foreign))
}

func TestBase_ResolveConfig(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	p.SetTenant("9")
	p.Configure(map[string]string{"key": "static"}, false)

	require.NoError(t, p.ResolveConfig(context.Background()))
	assert.Equal(t, "static", p.ConfigValue("key"))

	p.SetConfigResolver(func(ctx context.Context, provider, tenant string) (map[string]string, bool, error) {
		return map[string]string{"key": provider + "-" + tenant}, true, nil
	})
	require.NoError(t, p.ResolveConfig(context.Background()))
	assert.Equal(t, "stub-9", p.ConfigValue("key"))
	assert.True(t, p.IsLivemode())

	p.SetConfigResolver(func(ctx context.Context, provider, tenant string) (map[string]string, bool, error) {
		return nil, false, errors.New("no tenant")
	})
	assert.Error(t, p.ResolveConfig(context.Background()))
	assert.Equal(t, "stub-9", p.ConfigValue("key"))
}

func TestBase_SyncNotImplemented(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	resp, err := p.SyncTransaction(context.Background(), &model.Transaction{})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, TypeRetrieve, resp.Type)
	assert.Equal(t, MsgNotImplemented, resp.Message)
	assert.Equal(t, []string{"Sync is not implemented"}, resp.Errors)
	assert.Nil(t, p.Customer())
	assert.Nil(t, p.PaymentMethod(model.CustomerData{}))
}
