package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	role, ok := ParseRole(" Agent ")
	require.True(t, ok)
	assert.Equal(t, RoleAgent, role)

	_, ok = ParseRole("hoker")
	assert.False(t, ok)
}

func TestIdentityContextRoundTrip(t *testing.T) {
	_, ok := IdentityFromContext(context.Background())
	assert.False(t, ok)

	ctx := ContextWithIdentity(context.Background(), Identity{UserID: 12, Role: RoleCustomer})
	id, ok := IdentityFromContext(ctx)
	require.True(t, ok)
	assert.True(t, id.IsCustomer())
	assert.Equal(t, "customer:12", id.String())
}

func TestAuditLogValidate(t *testing.T) {
	assert.Error(t, AuditLog{Action: "bill.generate"}.Validate())
	assert.NoError(t, AuditLog{Action: "bill.generate", Entity: "generated_bill", EntityID: "4"}.Validate())
}
