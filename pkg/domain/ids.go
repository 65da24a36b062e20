// Package domain holds typed identifiers shared across the engine.
//
// Each entity gets its own UUID wrapper so a ContractID can never be passed
// where a QuoteID is expected. Parse helpers enforce the "valid, non-empty,
// non-nil" invariant at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "assurly/pkg/domain-errors"
)

type (
	// TenantID scopes every read and write; cross-tenant references are
	// forbidden.
	TenantID   uuid.UUID
	CustomerID uuid.UUID
	ProductID  uuid.UUID
	QuoteID    uuid.UUID
	OrderID    uuid.UUID
	ContractID uuid.UUID
	PaymentID  uuid.UUID
	ClaimID    uuid.UUID
)

func (id TenantID) String() string   { return uuid.UUID(id).String() }
func (id CustomerID) String() string { return uuid.UUID(id).String() }
func (id ProductID) String() string  { return uuid.UUID(id).String() }
func (id QuoteID) String() string    { return uuid.UUID(id).String() }
func (id OrderID) String() string    { return uuid.UUID(id).String() }
func (id ContractID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) String() string  { return uuid.UUID(id).String() }
func (id ClaimID) String() string    { return uuid.UUID(id).String() }

func (id TenantID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CustomerID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id QuoteID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id OrderID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ContractID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id PaymentID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id ClaimID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }

// NewTenantID mints a fresh tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewCustomerID mints a fresh customer identifier.
func NewCustomerID() CustomerID { return CustomerID(uuid.New()) }

// NewProductID mints a fresh product identifier.
func NewProductID() ProductID { return ProductID(uuid.New()) }

// NewQuoteID mints a fresh quote identifier.
func NewQuoteID() QuoteID { return QuoteID(uuid.New()) }

// NewOrderID mints a fresh order identifier.
func NewOrderID() OrderID { return OrderID(uuid.New()) }

// NewContractID mints a fresh contract identifier.
func NewContractID() ContractID { return ContractID(uuid.New()) }

// NewPaymentID mints a fresh payment identifier.
func NewPaymentID() PaymentID { return PaymentID(uuid.New()) }

// NewClaimID mints a fresh claim identifier.
func NewClaimID() ClaimID { return ClaimID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Newf(dErrors.CodeInvalidInput, "invalid id %q", s)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be nil")
	}
	return u, nil
}

// ParseTenantID validates and returns a TenantID.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	return TenantID(u), err
}

// ParseCustomerID validates and returns a CustomerID.
func ParseCustomerID(s string) (CustomerID, error) {
	u, err := parseUUID(s)
	return CustomerID(u), err
}

// ParseProductID validates and returns a ProductID.
func ParseProductID(s string) (ProductID, error) {
	u, err := parseUUID(s)
	return ProductID(u), err
}

// ParseQuoteID validates and returns a QuoteID.
func ParseQuoteID(s string) (QuoteID, error) {
	u, err := parseUUID(s)
	return QuoteID(u), err
}

// ParseOrderID validates and returns an OrderID.
func ParseOrderID(s string) (OrderID, error) {
	u, err := parseUUID(s)
	return OrderID(u), err
}

// ParseContractID validates and returns a ContractID.
func ParseContractID(s string) (ContractID, error) {
	u, err := parseUUID(s)
	return ContractID(u), err
}

// ParsePaymentID validates and returns a PaymentID.
func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s)
	return PaymentID(u), err
}

// ParseClaimID validates and returns a ClaimID.
func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID(s)
	return ClaimID(u), err
}
