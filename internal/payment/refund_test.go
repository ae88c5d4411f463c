package payment

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/richardliu001/payment-ledger/internal/model"
	"github.com/richardliu001/payment-ledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func chargedParent(t *testing.T, ledger *service.LedgerService, amount int64) *model.Transaction {
	t.Helper()
	parent := &model.Transaction{
		TenantID:          "1",
		OrderableID:       "o1",
		OrderableAmount:   amount,
		Currency:          "gbp",
		Amount:            amount,
		AmountEscrow:      50,
		TransactionFamily: model.FamilyPayment,
		Success:           true,
		Status:            model.StatusSuccess,
		LocalStatus:       model.LocalStatusComplete,
		PaymentProvider:   "stub",
	}
	require.NoError(t, ledger.Save(context.Background(), parent))
	return parent
}

func TestRecordRefund_PartialThenFull(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	p.SetTenant("1")
	parent := chargedParent(t, ledger, 1000)

	resp := p.RecordRefund(ctx, parent, RefundEntry{CashierID: "c1", Amount: 400, Description: "damaged"})
	require.True(t, resp.Success, resp.Errors)
	row := resp.Transaction
	require.NotNil(t, row)
	assert.Equal(t, int64(0), row.Amount)
	assert.Equal(t, int64(-400), row.AmountRefunded)
	assert.Equal(t, parent.ID, *row.ParentID)
	assert.True(t, row.Refund)
	assert.True(t, row.DisplayOnly)
	assert.True(t, row.Success)
	assert.Equal(t, model.FamilyRefund, row.TransactionFamily)
	assert.NotEmpty(t, *row.TransactionFamilyID)
	assert.Equal(t, "c1", *row.CashierID)
	assert.Equal(t, model.StatusSuccess, row.Status)
	assert.Equal(t, model.LocalStatusComplete, row.LocalStatus)
	assert.Equal(t, "damaged", row.Description)
	assert.Equal(t, "o1", row.OrderableID)

	assert.Equal(t, int64(-400), parent.AmountRefunded)
	assert.Equal(t, int64(50), parent.AmountEscrow)
	stored, err := ledger.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-400), stored.AmountRefunded)

	total, err := ledger.TotalPaid(ctx, "1", "o1", false)
	require.NoError(t, err)
	assert.Equal(t, int64(600), total)

	resp = p.RecordRefund(ctx, parent, RefundEntry{Amount: 600})
	require.True(t, resp.Success)
	assert.Equal(t, int64(-1000), parent.AmountRefunded)
	assert.Equal(t, DefaultRefundDescription, resp.Transaction.Description)
	assert.Equal(t, RefundFully, RefundStateOf(parent))

	resp = p.RecordRefund(ctx, parent, RefundEntry{Amount: 1})
	assert.False(t, resp.Success)
	assert.Equal(t, MsgInvalidRefund, resp.Message)
	assert.Equal(t, []string{"Refund was invalid"}, resp.Errors)
}

func TestRecordRefund_EscrowStaysOnParent(t *testing.T) {
	ctx := context.Background()
	ledger, db := newLedger(t)
	p := newStub(t, ledger)
	parent := chargedParent(t, ledger, 1000)

	resp := p.RecordRefund(ctx, parent, RefundEntry{Amount: 100})
	require.True(t, resp.Success, resp.Errors)
	row := resp.Transaction
	assert.Equal(t, int64(0), row.AmountEscrow)
	assert.Equal(t, int64(0), row.AmountEscrowClaimed)
	assert.Nil(t, row.EscrowClaimedAt)
	assert.Nil(t, row.EscrowExpiresAt)
	assert.False(t, row.IsEscrow())

	stored, err := ledger.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), stored.AmountEscrow)

	var escrowRows int64
	require.NoError(t, db.Model(&model.Transaction{}).Where("amount_escrow > 0").Count(&escrowRows).Error)
	assert.Equal(t, int64(1), escrowRows)
}

func TestRecordRefund_RollsBackBothRows(t *testing.T) {
	ctx := context.Background()
	ledger, db := newLedger(t)
	p := newStub(t, ledger)
	parent := chargedParent(t, ledger, 1000)

	require.NoError(t, db.Callback().Update().Before("gorm:update").Register("test:fail_update", func(d *gorm.DB) {
		_ = d.AddError(errors.New("disk full"))
	}))

	resp := p.RecordRefund(ctx, parent, RefundEntry{Amount: 300})
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Transaction)
	assert.Contains(t, resp.Errors[0], "disk full")
	assert.Equal(t, int64(0), parent.AmountRefunded)

	rows, err := ledger.History(ctx, "1", "o1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(0), rows[0].AmountRefunded)
}

func TestRecordRefund_ConcurrentRefundsCannotOverdraw(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger(t)
	parent := chargedParent(t, ledger, 1000)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < 2; i++ {
		p := newStub(t, ledger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			cp := *parent
			if p.RecordRefund(ctx, &cp, RefundEntry{Amount: 600}).Success {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	stored, err := ledger.Get(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(-600), stored.AmountRefunded)
}

func TestRecordRefund_RejectsForeignTransaction(t *testing.T) {
	ledger, _ := newLedger(t)
	p := newStub(t, ledger)
	parent := &model.Transaction{ID: 1, PaymentProvider: "cash", Amount: 100}

	resp := p.RecordRefund(context.Background(), parent, RefundEntry{Amount: 10})
	assert.False(t, resp.Success)
	assert.Equal(t, []string{MsgUnauthorised}, resp.Errors)
}
