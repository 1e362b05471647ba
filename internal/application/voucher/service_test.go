package voucher

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/go-redemption-api/internal/domain"
	"github.com/go-redemption-api/internal/infrastructure/memstore"
	"github.com/go-redemption-api/internal/infrastructure/metrics"
	"github.com/go-redemption-api/internal/pkg/phone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T, v domain.Voucher) (Service, *memstore.VoucherRepo) {
	t.Helper()
	repo := memstore.NewVoucherRepo()
	require.NoError(t, repo.Create(context.Background(), &v))
	svc := NewService(ServiceDeps{VoucherRepo: repo, Phones: phone.NewNormalizer("IN"), Metrics: metrics.Nop{}})
	return svc, repo
}

func TestReserve_TakesFirstAvailableInInputOrder(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 2, Active: true})

	res, err := svc.Reserve(context.Background(), "VIP", "ev1", "h1", []string{"+911", "+912", "+913"})
	require.NoError(t, err)
	assert.Equal(t, domain.Reservation{Code: "VIP", Phones: []string{"+911", "+912"}}, res)

	v, _ := repo.Get(context.Background(), "VIP")
	assert.Equal(t, 0, v.Remaining)
	assert.Equal(t, 2, v.Unconfirmed)
}

func TestReserve_SkipsPriorClaimants(t *testing.T) {
	svc, _ := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 5, Remaining: 3, Active: true,
		Reserved: []string{"+911"}, Redeemed: []string{"+912"}})

	res, err := svc.Reserve(context.Background(), "VIP", "ev1", "h1", []string{"+911", "+912", "+913"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+913"}, res.Phones)
}

func TestReserve_EmptyWhenNotApplicable(t *testing.T) {
	cases := map[string]domain.Voucher{
		"inactive":     {Code: "VIP", MaxUsage: 5, Remaining: 5},
		"other event":  {Code: "VIP", MaxUsage: 5, Remaining: 5, Active: true, EventID: "ev2"},
		"exhausted":    {Code: "VIP", MaxUsage: 5, Remaining: 0, Active: true},
		"soft deleted": {Code: "VIP", MaxUsage: 5, Remaining: 5, Active: true, Deleted: true},
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			svc, _ := setup(t, v)
			res, err := svc.Reserve(context.Background(), "VIP", "ev1", "h1", []string{"+911"})
			require.NoError(t, err)
			assert.True(t, res.Empty())
		})
	}
}

func TestReserve_MissingVoucherIsEmpty(t *testing.T) {
	svc, _ := setup(t, domain.Voucher{Code: "VIP"})
	res, err := svc.Reserve(context.Background(), "NOPE", "ev1", "h1", []string{"+911"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

// racingStore steals capacity between the read and the conditional write.
type racingStore struct {
	*memstore.VoucherRepo
	steals int
}

func (r *racingStore) Reserve(ctx context.Context, code, holder string, phones []string) error {
	if r.steals > 0 {
		r.steals--
		if err := r.VoucherRepo.Reserve(ctx, code, "thief", []string{fmt.Sprintf("+9199%d", r.steals)}); err != nil {
			return err
		}
	}
	return r.VoucherRepo.Reserve(ctx, code, holder, phones)
}

func TestReserve_RereadsAfterLosingRace(t *testing.T) {
	repo := memstore.NewVoucherRepo()
	require.NoError(t, repo.Create(context.Background(), &domain.Voucher{Code: "VIP", MaxUsage: 2, Remaining: 2, Active: true}))
	svc := NewService(ServiceDeps{VoucherRepo: &racingStore{VoucherRepo: repo, steals: 1}, Metrics: metrics.Nop{}})

	res, err := svc.Reserve(context.Background(), "VIP", "ev1", "h1", []string{"+911", "+912"})
	require.NoError(t, err)
	assert.Equal(t, []string{"+911"}, res.Phones)
}

func TestReserve_GivesUpUnderContention(t *testing.T) {
	repo := memstore.NewVoucherRepo()
	require.NoError(t, repo.Create(context.Background(), &domain.Voucher{Code: "VIP", MaxUsage: 10, Remaining: 3, Active: true}))
	svc := NewService(ServiceDeps{VoucherRepo: &racingStore{VoucherRepo: repo, steals: 3}, Metrics: metrics.Nop{}})

	res, err := svc.Reserve(context.Background(), "VIP", "ev1", "h1", []string{"+911", "+912", "+913"})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestConcurrentReserveConfirm_NeverExceedsMax(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 7, Remaining: 7, Active: true})
	ctx := context.Background()

	var wg sync.WaitGroup
	for b := 0; b < 12; b++ {
		wg.Add(1)
		go func(b int) {
			defer wg.Done()
			phones := []string{fmt.Sprintf("+91%d1", b), fmt.Sprintf("+91%d2", b)}
			holder := fmt.Sprintf("batch-%d", b)
			res, err := svc.Reserve(ctx, "VIP", "ev1", holder, phones)
			if err != nil || res.Empty() {
				return
			}
			if b%3 == 0 {
				_ = svc.Release(ctx, "VIP", holder, res.Phones)
				return
			}
			_, _ = svc.Confirm(ctx, "VIP", holder, len(res.Phones))
		}(b)
	}
	wg.Wait()

	v, err := repo.Get(ctx, "VIP")
	require.NoError(t, err)
	held := v.MaxUsage - v.Remaining
	assert.LessOrEqual(t, held, v.MaxUsage)
	assert.Equal(t, len(v.Reserved)+len(v.Redeemed), held)
	assert.LessOrEqual(t, v.Confirmed, held)
	assert.Equal(t, 0, v.Unconfirmed)
}

func TestRelease_Idempotent(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 2, Remaining: 2, Active: true})
	ctx := context.Background()
	res, err := svc.Reserve(ctx, "VIP", "", "h1", []string{"+911", "+912"})
	require.NoError(t, err)

	require.NoError(t, svc.Release(ctx, "VIP", "h1", res.Phones))
	require.NoError(t, svc.Release(ctx, "VIP", "h1", res.Phones))

	v, _ := repo.Get(ctx, "VIP")
	assert.Equal(t, 2, v.Remaining)
	assert.Equal(t, 0, v.Unconfirmed)
	assert.Equal(t, 0, v.Confirmed)
}

func TestConfirm_ReplayedHolderCountsOnce(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true})
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "VIP", "", "att-1", []string{"+911"})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, "VIP", "", "att-2", []string{"+912"})
	require.NoError(t, err)

	applied, err := svc.Confirm(ctx, "VIP", "att-1", 1)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = svc.Confirm(ctx, "VIP", "att-1", 1)
	require.NoError(t, err)
	assert.False(t, applied)

	v, _ := repo.Get(ctx, "VIP")
	assert.Equal(t, 1, v.Confirmed)
	assert.Equal(t, 1, v.Unconfirmed)

	applied, err = svc.Confirm(ctx, "VIP", "att-2", 1)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestRelease_OnlyTouchesOwnUnsettledReservations(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true})
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "VIP", "", "att-1", []string{"+911"})
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, "VIP", "att-1", []string{"+911"}))

	// +911 is reserved again by a later attempt; replaying the first release is a no-op.
	_, err = svc.Reserve(ctx, "VIP", "", "att-2", []string{"+911"})
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, "VIP", "att-1", []string{"+911"}))

	// A settled holder keeps its slot even if its compensation is replayed.
	_, err = svc.Reserve(ctx, "VIP", "", "att-3", []string{"+912"})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, "VIP", "att-3", 1)
	require.NoError(t, err)
	require.NoError(t, svc.Release(ctx, "VIP", "att-3", []string{"+912"}))

	v, _ := repo.Get(ctx, "VIP")
	assert.ElementsMatch(t, []string{"+911", "+912"}, v.Reserved)
	assert.Equal(t, "att-2", v.HolderOf("+911"))
	assert.Equal(t, 1, v.Remaining)
	assert.Equal(t, 1, v.Unconfirmed)
	assert.Equal(t, 1, v.Confirmed)
}

func TestClaim_DoesNotSpendAnotherHoldersReservation(t *testing.T) {
	svc, repo := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true})
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "VIP", "", "att-1", []string{"+919812345678"})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, "VIP", "+919876543210")
	require.NoError(t, err)

	v, _ := repo.Get(ctx, "VIP")
	assert.Equal(t, 1, v.Unconfirmed)
	applied, err := svc.Confirm(ctx, "VIP", "att-1", 1)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestConfirm_CannotExceedUnconfirmed(t *testing.T) {
	svc, _ := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 2, Remaining: 2, Active: true})
	applied, err := svc.Confirm(context.Background(), "VIP", "h1", 1)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.False(t, applied)
}

func TestRedeemAtVenue(t *testing.T) {
	svc, _ := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 3, Remaining: 3, Active: true})
	ctx := context.Background()
	_, err := svc.Reserve(ctx, "VIP", "", "h1", []string{"+919876543210"})
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, "VIP", "h1", 1)
	require.NoError(t, err)

	v, err := svc.RedeemAtVenue(ctx, "VIP", "98765 43210")
	require.NoError(t, err)
	assert.Equal(t, []string{"+919876543210"}, v.Redeemed)
	assert.Empty(t, v.Reserved)
	assert.Equal(t, 2, v.Remaining)
	assert.Equal(t, 1, v.Confirmed)

	_, err = svc.RedeemAtVenue(ctx, "VIP", "+919876543210")
	assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)
	_, err = svc.RedeemAtVenue(ctx, "VIP", "+919812345678")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestClaim(t *testing.T) {
	svc, _ := setup(t, domain.Voucher{Code: "VIP", MaxUsage: 1, Remaining: 1, Active: true})
	ctx := context.Background()

	v, err := svc.Claim(ctx, "VIP", "+919876543210")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Confirmed)
	assert.Equal(t, 0, v.Unconfirmed)

	_, err = svc.Claim(ctx, "VIP", "+919876543210")
	assert.ErrorIs(t, err, domain.ErrConflict)
	_, err = svc.Claim(ctx, "VIP", "+919812345678")
	assert.ErrorIs(t, err, domain.ErrSoldOut)
	_, err = svc.Claim(ctx, "VIP", "not a phone")
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}
