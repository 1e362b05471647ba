package memstore

import (
	"context"
	"sync"

	"github.com/go-redemption-api/internal/domain"
)

type VoucherRepo struct {
	mu       sync.Mutex
	vouchers map[string]domain.Voucher
}

func NewVoucherRepo() *VoucherRepo {
	return &VoucherRepo{vouchers: make(map[string]domain.Voucher)}
}

func (r *VoucherRepo) Create(_ context.Context, v *domain.Voucher) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vouchers[v.Code]; ok {
		return conflict("voucher code taken")
	}
	c := *v
	c.Reserved = cloneStrings(v.Reserved)
	c.Redeemed = cloneStrings(v.Redeemed)
	c.Holders = cloneHolders(v.Holders)
	c.Settled = cloneStrings(v.Settled)
	r.vouchers[v.Code] = c
	return nil
}

func (r *VoucherRepo) Get(_ context.Context, code string) (*domain.Voucher, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok || !v.Visible() {
		return nil, notFound("voucher")
	}
	v.Reserved = cloneStrings(v.Reserved)
	v.Redeemed = cloneStrings(v.Redeemed)
	v.Holders = cloneHolders(v.Holders)
	v.Settled = cloneStrings(v.Settled)
	return &v, nil
}

func (r *VoucherRepo) Reserve(_ context.Context, code, holder string, phones []string) error {
	if len(phones) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok || !v.Active || v.Deleted || v.Remaining < len(phones) {
		return conflict("voucher capacity changed")
	}
	for _, p := range phones {
		if contains(v.Reserved, p) || contains(v.Redeemed, p) {
			return conflict("voucher capacity changed")
		}
	}
	v.Remaining -= len(phones)
	v.Unconfirmed += len(phones)
	v.Reserved = append(cloneStrings(v.Reserved), phones...)
	v.Holders = cloneHolders(v.Holders)
	for _, p := range phones {
		v.Holders[p] = holder
	}
	r.vouchers[code] = v
	return nil
}

func (r *VoucherRepo) Confirm(_ context.Context, code, holder string, n int) error {
	if n <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok || v.Unconfirmed < n || contains(v.Settled, holder) {
		return conflict("voucher reservations not confirmable")
	}
	v.Unconfirmed -= n
	v.Confirmed += n
	v.Settled = append(cloneStrings(v.Settled), holder)
	r.vouchers[code] = v
	return nil
}

func (r *VoucherRepo) Release(_ context.Context, code, holder, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok || v.Holders[phone] != holder || contains(v.Settled, holder) || !contains(v.Reserved, phone) || v.Unconfirmed < 1 {
		return nil
	}
	v.Remaining++
	v.Unconfirmed--
	v.Reserved = remove(v.Reserved, phone)
	v.Holders = cloneHolders(v.Holders)
	delete(v.Holders, phone)
	r.vouchers[code] = v
	return nil
}

func (r *VoucherRepo) RedeemAtVenue(_ context.Context, code, phone string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vouchers[code]
	if !ok || !contains(v.Reserved, phone) {
		return conflict("phone holds no reservation")
	}
	v.Reserved = remove(v.Reserved, phone)
	v.Redeemed = append(cloneStrings(v.Redeemed), phone)
	r.vouchers[code] = v
	return nil
}

func cloneHolders(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
