package model

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	FamilyPayment = "payment"
	FamilyRefund  = "refund"

	// LocalStatusInit and LocalStatusComplete are set by this service, never by a provider.
	LocalStatusInit     = "init"
	LocalStatusComplete = "complete"

	StatusUnknown = "unknown"
	StatusSuccess = "success"
)

var (
	ErrNegativeAmount   = errors.New("transaction amount must not be negative")
	ErrPositiveRefunded = errors.New("transaction amount_refunded must not be positive")
	ErrRefundRowAmount  = errors.New("refund transaction must have zero amount")
)

// Transaction is one payment or refund attempt. Rows are never deleted.
type Transaction struct {
	ID       uint64  `gorm:"primaryKey" json:"id"`
	PID      string  `gorm:"column:pid;size:36;uniqueIndex;not null" json:"pid"`
	TenantID string  `gorm:"size:64;not null;index:idx_tx_orderable,priority:1" json:"tenant_id"`
	ParentID *uint64 `gorm:"index" json:"parent_id"`

	// CashierID is nil when the customer initiated the transaction.
	CashierID *string `gorm:"size:64" json:"cashier_id"`

	OrderableID     string `gorm:"size:64;not null;index:idx_tx_orderable,priority:2" json:"orderable_id"`
	OrderableAmount int64  `gorm:"not null" json:"orderable_amount"`
	Currency        string `gorm:"size:3" json:"currency"`

	AmountEscrow        int64      `gorm:"not null" json:"amount_escrow"`
	AmountEscrowClaimed int64      `gorm:"not null" json:"amount_escrow_claimed"`
	EscrowClaimedAt     *time.Time `json:"escrow_claimed_at"`
	EscrowExpiresAt     *time.Time `json:"escrow_expires_at"`

	// Amount is what was received; always >= 0 and 0 on refund rows.
	Amount int64 `gorm:"not null" json:"amount"`
	// AmountRefunded is cumulative and always <= 0.
	AmountRefunded int64 `gorm:"not null" json:"amount_refunded"`

	TransactionFamily   string  `gorm:"size:32;not null" json:"transaction_family"`
	TransactionFamilyID *string `gorm:"size:255;index:idx_tx_family,priority:2" json:"transaction_family_id"`
	TransactionChildID  *string `gorm:"size:255;index:idx_tx_family,priority:3" json:"transaction_child_id"`

	Success     bool   `gorm:"not null;index:idx_tx_orderable,priority:4" json:"success"`
	Refund      bool   `gorm:"not null" json:"refund"`
	DisplayOnly bool   `gorm:"not null;index:idx_tx_orderable,priority:5" json:"display_only"`
	Status      string `gorm:"size:64;not null" json:"status"`
	LocalStatus string `gorm:"size:32;not null" json:"local_status"`

	Retrospective  bool `gorm:"not null" json:"retrospective"`
	ThroughWebhook bool `gorm:"not null" json:"through_webhook"`

	AddressMatched  bool `gorm:"not null" json:"address_matched"`
	PostcodeMatched bool `gorm:"not null" json:"postcode_matched"`
	CVCMatched      bool `gorm:"column:cvc_matched;not null" json:"cvc_matched"`
	ThreeDSecure    bool `gorm:"column:threed_secure;not null" json:"threed_secure"`

	Description string            `gorm:"size:255" json:"description"`
	Notes       string            `gorm:"type:text" json:"notes"`
	Meta        datatypes.JSONMap `json:"meta"`

	Livemode        bool    `gorm:"not null;index:idx_tx_orderable,priority:3" json:"livemode"`
	PaymentProvider string  `gorm:"size:64;not null;index:idx_tx_family,priority:1" json:"payment_provider"`
	UserType        *string `gorm:"size:128" json:"user_type"`
	UserID          *string `gorm:"size:128" json:"user_id"`
	CardType        string  `gorm:"size:32" json:"card_type"`
	LastFour        string  `gorm:"size:4" json:"last_four"`

	Version   uint64    `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string { return "transactions" }

// BeforeCreate assigns the public id.
func (t *Transaction) BeforeCreate(tx *gorm.DB) error {
	if t.PID == "" {
		t.PID = uuid.NewString()
	}
	return nil
}

// OrderKeyer is the part of an orderable the reuse policy needs.
type OrderKeyer interface {
	Key() string
}

// IsUsed reports whether the row already represents money movement or staff attention
// and therefore must not be overwritten for another attempt.
func (t *Transaction) IsUsed() bool {
	localStatus := t.LocalStatus
	if localStatus == "" {
		localStatus = LocalStatusInit
	}
	return t.Success || localStatus != LocalStatusInit || t.CashierID != nil
}

// IsUsableFor reports whether the row can be recycled for a new attempt on order.
func (t *Transaction) IsUsableFor(order OrderKeyer) bool {
	if order == nil {
		return false
	}
	return !t.IsUsed() && t.OrderableID == order.Key()
}

// RefundableAmount is what is left to refund: amount - |amount_refunded|.
func (t *Transaction) RefundableAmount() int64 {
	return t.Amount - abs(t.AmountRefunded)
}

// IsValidRefundAmount reports whether amount fits in the remaining balance.
func (t *Transaction) IsValidRefundAmount(amount int64) bool {
	return t.RefundableAmount() >= amount
}

func (t *Transaction) IsForPaymentProvider(provider string) bool {
	return t.PaymentProvider == provider
}

func (t *Transaction) IsLivemode() bool { return t.Livemode }

func (t *Transaction) IsEscrow() bool { return t.AmountEscrow != 0 }

// NetAmount is the row's contribution to total paid.
func (t *Transaction) NetAmount() int64 {
	return t.Amount + t.AmountRefunded
}

// IsFamily reports whether the row belongs to the provider-side group id.
func (t *Transaction) IsFamily(familyID string) bool {
	return t.TransactionFamilyID != nil && *t.TransactionFamilyID == familyID
}

// Validate enforces the sign rules on the amount columns.
func (t *Transaction) Validate() error {
	if t.Amount < 0 {
		return ErrNegativeAmount
	}
	if t.AmountRefunded > 0 {
		return ErrPositiveRefunded
	}
	if t.Refund && t.Amount != 0 {
		return ErrRefundRowAmount
	}
	return nil
}

// ToCustomerData returns nil for guest transactions.
func (t *Transaction) ToCustomerData() *CustomerData {
	if t.UserType == nil || t.UserID == nil || *t.UserType == "" || *t.UserID == "" {
		return nil
	}
	return &CustomerData{UserType: *t.UserType, UserID: *t.UserID}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
