package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	ORDER_STATUS_PENDING    = "pending"
	ORDER_STATUS_PROCESSING = "processing"
	ORDER_STATUS_COMPLETED  = "completed"
	ORDER_STATUS_FAILED     = "failed"
	ORDER_STATUS_CANCELLED  = "cancelled"
)

// TerminalOrderStatuses are the states an order never leaves.
var TerminalOrderStatuses = []string{ORDER_STATUS_COMPLETED, ORDER_STATUS_FAILED, ORDER_STATUS_CANCELLED}

// PaymentOrder records a purchase intent. Amount and currency are fixed at creation.
type PaymentOrder struct {
	ID                  uint              `gorm:"primaryKey" json:"id"`
	OrderRef            string            `gorm:"type:varchar(20);uniqueIndex;not null" json:"order_ref"`
	UserID              uint              `gorm:"index;not null" json:"user_id"`
	PackageID           uint              `gorm:"index;not null" json:"package_id"`
	Amount              decimal.Decimal   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency            string            `gorm:"type:varchar(3);not null" json:"currency"`
	CreditsPurchased    int               `gorm:"not null" json:"credits_purchased"`
	Status              string            `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExternalPaymentID   string            `gorm:"type:varchar(255);index" json:"external_payment_id,omitempty"`
	ExternalPaymentLink string            `gorm:"type:varchar(1000)" json:"external_payment_link,omitempty"`
	Metadata            datatypes.JSONMap `json:"metadata"`
	CreatedAt           time.Time         `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewOrderRef generates a human readable order reference like GHB-1A2B3C4D.
func NewOrderRef() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("GHB-%s", strings.ToUpper(hex[:8]))
}

// IsTerminal reports whether the order reached completed, failed or cancelled.
func (o *PaymentOrder) IsTerminal() bool {
	return IsTerminalOrderStatus(o.Status)
}

// IsIntro reads the is_intro flag stored in metadata at creation.
func (o *PaymentOrder) IsIntro() bool {
	if o.Metadata == nil {
		return false
	}
	v, ok := o.Metadata["is_intro"].(bool)
	return ok && v
}

// MetadataPackageID reads package_id from metadata. A reloaded row decodes
// numbers as json.Number, a fresh one holds the uint written at creation.
func (o *PaymentOrder) MetadataPackageID() (uint, bool) {
	if o.Metadata == nil {
		return 0, false
	}
	switch v := o.Metadata["package_id"].(type) {
	case uint:
		return v, true
	case int:
		return uint(v), v >= 0
	case float64:
		return uint(v), v >= 0
	case json.Number:
		n, err := strconv.ParseUint(v.String(), 10, 64)
		return uint(n), err == nil
	}
	return 0, false
}

func IsTerminalOrderStatus(status string) bool {
	for _, s := range TerminalOrderStatuses {
		if status == s {
			return true
		}
	}
	return false
}
