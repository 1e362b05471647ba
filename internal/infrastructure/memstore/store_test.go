package memstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-redemption-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoucherRepo_ReserveNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	r := NewVoucherRepo()
	require.NoError(t, r.Create(ctx, &domain.Voucher{Code: "VIP", MaxUsage: 5, Remaining: 5, Active: true}))

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = r.Reserve(ctx, "VIP", fmt.Sprintf("h%d", i), []string{fmt.Sprintf("+9190000000%02d", i)})
		}(i)
	}
	wg.Wait()

	v, err := r.Get(ctx, "VIP")
	require.NoError(t, err)
	assert.Equal(t, 0, v.Remaining)
	assert.Len(t, v.Reserved, 5)
	assert.Equal(t, 5, v.Unconfirmed)
}

func TestVoucherRepo_ReserveRejectsPriorClaimant(t *testing.T) {
	ctx := context.Background()
	r := NewVoucherRepo()
	require.NoError(t, r.Create(ctx, &domain.Voucher{Code: "VIP", MaxUsage: 5, Remaining: 5, Active: true}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h1", []string{"+911"}))
	require.NoError(t, r.RedeemAtVenue(ctx, "VIP", "+911"))

	assert.ErrorIs(t, r.Reserve(ctx, "VIP", "h2", []string{"+912", "+911"}), domain.ErrConflict)
	v, _ := r.Get(ctx, "VIP")
	assert.Equal(t, 4, v.Remaining)
	assert.Equal(t, []string{"+911"}, v.Redeemed)
	assert.Empty(t, v.Reserved)
}

func TestVoucherRepo_ReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := NewVoucherRepo()
	require.NoError(t, r.Create(ctx, &domain.Voucher{Code: "VIP", MaxUsage: 2, Remaining: 2, Active: true}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h1", []string{"+911", "+912"}))

	require.NoError(t, r.Release(ctx, "VIP", "h1", "+911"))
	require.NoError(t, r.Release(ctx, "VIP", "h1", "+911"))

	v, _ := r.Get(ctx, "VIP")
	assert.Equal(t, 1, v.Remaining)
	assert.Equal(t, 1, v.Unconfirmed)
	assert.Equal(t, []string{"+912"}, v.Reserved)
	assert.Empty(t, v.HolderOf("+911"))
	assert.Equal(t, "h1", v.HolderOf("+912"))
}

func TestVoucherRepo_ReleaseIgnoresOtherHolders(t *testing.T) {
	ctx := context.Background()
	r := NewVoucherRepo()
	require.NoError(t, r.Create(ctx, &domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h1", []string{"+911"}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h2", []string{"+912"}))
	require.NoError(t, r.Confirm(ctx, "VIP", "h2", 1))

	require.NoError(t, r.Release(ctx, "VIP", "h2", "+911"))
	require.NoError(t, r.Release(ctx, "VIP", "h2", "+912"))

	v, _ := r.Get(ctx, "VIP")
	assert.Equal(t, 1, v.Remaining)
	assert.Equal(t, 1, v.Unconfirmed)
	assert.ElementsMatch(t, []string{"+911", "+912"}, v.Reserved)
}

func TestVoucherRepo_ConfirmOncePerHolder(t *testing.T) {
	ctx := context.Background()
	r := NewVoucherRepo()
	require.NoError(t, r.Create(ctx, &domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h1", []string{"+911"}))
	require.NoError(t, r.Reserve(ctx, "VIP", "h2", []string{"+912"}))

	require.NoError(t, r.Confirm(ctx, "VIP", "h1", 1))
	assert.ErrorIs(t, r.Confirm(ctx, "VIP", "h1", 1), domain.ErrConflict)

	v, _ := r.Get(ctx, "VIP")
	assert.Equal(t, 1, v.Confirmed)
	assert.Equal(t, 1, v.Unconfirmed)
	assert.True(t, v.SettledBy("h1"))
}

func TestLinkRepo_LeaseIsExclusiveUntilExpiry(t *testing.T) {
	ctx := context.Background()
	r := NewLinkRepo()
	require.NoError(t, r.Create(ctx, &domain.RedemptionLink{Token: "abc123", State: domain.LinkIssued}))
	now := time.Now()

	require.NoError(t, r.AcquireLease(ctx, "abc123", "a1", now.Add(time.Minute), now))
	assert.ErrorIs(t, r.AcquireLease(ctx, "abc123", "a2", now.Add(time.Minute), now), domain.ErrConflict)
	assert.ErrorIs(t, r.MarkRedeemed(ctx, "abc123", "a2", now), domain.ErrConflict)

	later := now.Add(2 * time.Minute)
	require.NoError(t, r.AcquireLease(ctx, "abc123", "a2", later.Add(time.Minute), later))
	assert.ErrorIs(t, r.MarkRedeemed(ctx, "abc123", "a1", later), domain.ErrConflict)
	require.NoError(t, r.MarkRedeemed(ctx, "abc123", "a2", later))

	l, err := r.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.LinkRedeemed, l.State)
	assert.Equal(t, "a2", l.RedeemedByAttempt)
	assert.ErrorIs(t, r.AcquireLease(ctx, "abc123", "a3", later.Add(time.Hour), later.Add(time.Hour)), domain.ErrConflict)
}

func TestAllocationRepo_DeleteOnlyOwnAttempt(t *testing.T) {
	ctx := context.Background()
	r := NewAllocationRepo()
	require.NoError(t, r.Create(ctx, &domain.TicketAllocation{EventID: "ev", Phone: "+911", AttemptID: "a1"}))
	assert.ErrorIs(t, r.Create(ctx, &domain.TicketAllocation{EventID: "ev", Phone: "+911", AttemptID: "a2"}), domain.ErrConflict)

	require.NoError(t, r.Delete(ctx, "ev", "+911", "a2"))
	assert.Equal(t, 1, r.Count("ev"))
	require.NoError(t, r.Delete(ctx, "ev", "+911", "a1"))
	assert.Equal(t, 0, r.Count("ev"))
}

func TestAttemptRepo_TransitionGuardsState(t *testing.T) {
	ctx := context.Background()
	r := NewAttemptRepo()
	require.NoError(t, r.Create(ctx, &domain.CommitAttempt{AttemptID: "a1", State: domain.AttemptPending}))

	require.NoError(t, r.Transition(ctx, "a1", domain.AttemptPending, domain.AttemptAllocated,
		domain.AttemptPatch{CreatedPhones: []string{"+911"}}, time.Now()))
	assert.ErrorIs(t, r.Transition(ctx, "a1", domain.AttemptPending, domain.AttemptRolledBack,
		domain.AttemptPatch{}, time.Now()), domain.ErrConflict)

	a, err := r.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, domain.AttemptAllocated, a.State)
	assert.Equal(t, []string{"+911"}, a.CreatedPhones)
}

func TestLinkSlotRepo_ReleaseOnlyByHolder(t *testing.T) {
	ctx := context.Background()
	r := NewLinkSlotRepo()
	require.NoError(t, r.Claim(ctx, &domain.LinkSlot{SlotKey: "ev#+911", Token: "abc123"}))
	assert.ErrorIs(t, r.Claim(ctx, &domain.LinkSlot{SlotKey: "ev#+911", Token: "zzz999"}), domain.ErrConflict)

	require.NoError(t, r.Release(ctx, "ev#+911", "zzz999"))
	_, err := r.Get(ctx, "ev#+911")
	require.NoError(t, err)
	require.NoError(t, r.Release(ctx, "ev#+911", "abc123"))
	_, err = r.Get(ctx, "ev#+911")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
