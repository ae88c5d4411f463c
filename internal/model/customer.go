package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// CustomerData identifies a local customer. UserType alone is required;
// a missing UserID means a guest.
type CustomerData struct {
	UserType  string `json:"user_type" binding:"required"`
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// IsGuest reports whether there is not enough identity to link a provider customer.
func (c *CustomerData) IsGuest() bool {
	return c == nil || c.UserType == "" || c.UserID == ""
}

// AddressData is an orderable's billing or shipping address.
type AddressData struct {
	Name         string `json:"name"`
	Line1        string `json:"line1"`
	Line2        string `json:"line2"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostCode     string `json:"post_code"`
	CountryCode  string `json:"country_code"`
	Phone        string `json:"phone"`
	Organisation string `json:"organisation"`
}

// ProviderCustomer links a local customer to a provider-side customer id.
type ProviderCustomer struct {
	ID                        uint64            `gorm:"primaryKey" json:"id"`
	PID                       string            `gorm:"column:pid;size:36;uniqueIndex;not null" json:"pid"`
	TenantID                  string            `gorm:"size:64;not null;index" json:"tenant_id"`
	PaymentProvider           string            `gorm:"size:64;not null;index:idx_ppc_user,priority:1" json:"payment_provider"`
	PaymentProviderCustomerID string            `gorm:"size:255;not null" json:"payment_provider_customer_id"`
	UserType                  string            `gorm:"size:128;not null;index:idx_ppc_user,priority:2" json:"user_type"`
	UserID                    string            `gorm:"size:128;not null;index:idx_ppc_user,priority:3" json:"user_id"`
	Meta                      datatypes.JSONMap `json:"meta"`
	CreatedAt                 time.Time         `gorm:"autoCreateTime" json:"-"`
	UpdatedAt                 time.Time         `gorm:"autoUpdateTime" json:"-"`

	PaymentMethods []ProviderPaymentMethod `gorm:"foreignKey:PaymentProviderCustomerID;constraint:OnDelete:CASCADE" json:"-"`
}

func (ProviderCustomer) TableName() string { return "payment_provider_customers" }

func (c *ProviderCustomer) BeforeCreate(tx *gorm.DB) error {
	if c.PID == "" {
		c.PID = uuid.NewString()
	}
	return nil
}

// ProviderPaymentMethod is a vaulted payment method of a ProviderCustomer.
type ProviderPaymentMethod struct {
	ID                             uint64            `gorm:"primaryKey" json:"id"`
	PID                            string            `gorm:"column:pid;size:36;uniqueIndex;not null" json:"pid"`
	TenantID                       string            `gorm:"size:64;not null;index" json:"tenant_id"`
	PaymentProviderCustomerID      uint64            `gorm:"not null;index" json:"payment_provider_customer_id"`
	PaymentProvider                string            `gorm:"size:64;not null" json:"payment_provider"`
	PaymentProviderPaymentMethodID string            `gorm:"size:255;not null;index" json:"payment_provider_payment_method_id"`
	Type                           string            `gorm:"size:64" json:"type"`
	CountryCode                    string            `gorm:"size:2" json:"country_code"`
	Brand                          string            `gorm:"size:64" json:"brand"`
	LastFour                       string            `gorm:"size:4" json:"last_four"`
	ExpiresAtMonth                 int               `json:"expires_at_month"`
	ExpiresAtYear                  int               `json:"expires_at_year"`
	IsDefault                      bool              `gorm:"not null" json:"is_default"`
	Livemode                       bool              `gorm:"not null" json:"livemode"`
	Meta                           datatypes.JSONMap `json:"meta"`
	CreatedAt                      time.Time         `gorm:"autoCreateTime" json:"-"`
	UpdatedAt                      time.Time         `gorm:"autoUpdateTime" json:"-"`
}

func (ProviderPaymentMethod) TableName() string { return "payment_provider_customer_payment_methods" }

func (m *ProviderPaymentMethod) BeforeCreate(tx *gorm.DB) error {
	if m.PID == "" {
		m.PID = uuid.NewString()
	}
	return nil
}
