package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

func TestLoadBalance_CorruptAmountIsAnError(t *testing.T) {
	// GIVEN: A stored balance whose used column is not a decimal
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	key := generic.BalanceKey{EmployeeID: "emp-1", Resource: leave.Annual, Year: 2025}
	b := generic.ZeroBalance(key)
	b.Total = generic.Days(21)
	_, err = store.SaveBalance(ctx, b)
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, `UPDATE balances SET used = 'garbage' WHERE employee_id = ?`, "emp-1")
	require.NoError(t, err)

	// WHEN: It is loaded
	_, err = store.LoadBalance(ctx, key)

	// THEN: The read fails instead of reporting 0 days used
	require.Error(t, err)
	assert.Contains(t, err.Error(), "garbage")

	_, err = store.ListBalances(ctx, "emp-1", 2025)
	assert.Error(t, err)
}

func TestEntries_CorruptDeltaIsAnError(t *testing.T) {
	store, err := New(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	key := generic.BalanceKey{EmployeeID: "emp-1", Resource: leave.Annual, Year: 2025}
	require.NoError(t, store.AppendEntry(ctx, generic.Transaction{
		ID: "tx-1", Key: key, Type: generic.TxGrant, Delta: generic.Days(21),
	}))
	_, err = store.db.ExecContext(ctx, `UPDATE ledger_entries SET delta_value = '2x1' WHERE id = ?`, "tx-1")
	require.NoError(t, err)

	_, err = store.Entries(ctx, key)
	assert.Error(t, err)
}
