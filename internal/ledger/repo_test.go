package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bukkus/bukkus-backend/pkg/db/models"
)

func TestFindBalanceDriftOnConsistentLedger(t *testing.T) {
	h := newHarness(t)
	a := h.fund(t, 100)
	b := h.fund(t, 0)
	_, err := h.svc.Transfer(context.Background(), TransferInput{FromAccountID: a, ToAccountID: b, Amount: 40})
	require.NoError(t, err)

	drift, err := NewRepository(h.conn).FindBalanceDrift(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, drift)
}

func TestFindBalanceDriftReportsTamperedAccounts(t *testing.T) {
	h := newHarness(t)
	a := h.fund(t, 100)
	h.fund(t, 20)
	require.NoError(t, h.conn.Model(&models.Account{}).Where("id = ?", a).Update("balance", 90).Error)

	drift, err := NewRepository(h.conn).FindBalanceDrift(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, drift, 1)
	assert.Equal(t, a, drift[0].AccountID)
	assert.EqualValues(t, 90, drift[0].Balance)
	assert.EqualValues(t, 100, drift[0].EntrySum)
}
