package domain

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assurly/pkg/domain-errors"
)

func TestParseID_RejectsBadInput(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseTenantID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseContractID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseQuoteID("00000000-0000-0000-0000-000000000000")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseID_RoundTrip(t *testing.T) {
	orderID := NewOrderID()
	parsed, err := ParseOrderID(orderID.String())
	require.NoError(t, err)
	assert.Equal(t, orderID, parsed)
}

func TestParseID_AcceptsUppercase(t *testing.T) {
	customerID := NewCustomerID()
	parsed, err := ParseCustomerID(strings.ToUpper(customerID.String()))
	require.NoError(t, err)
	assert.Equal(t, customerID, parsed)
}

func TestIsNil(t *testing.T) {
	assert.True(t, TenantID{}.IsNil())
	assert.True(t, QuoteID(uuid.Nil).IsNil())
	assert.False(t, NewTenantID().IsNil())
}
