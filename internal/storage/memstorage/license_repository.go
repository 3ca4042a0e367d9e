package memstorage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/entitlement-service/internal/domain/license"
	"github.com/makkenzo/entitlement-service/internal/ierr"
)

// LicenseRepository keeps licenses in memory. Every conditional update runs under
// the write lock, which gives it the same atomicity as the SQL statements.
type LicenseRepository struct {
	mu       sync.RWMutex
	licenses map[string]*license.License
	nowFn    func() time.Time
}

func NewLicenseRepository() *LicenseRepository {
	return &LicenseRepository{
		licenses: make(map[string]*license.License),
		nowFn:    time.Now,
	}
}

var _ license.Repository = (*LicenseRepository)(nil)

func (r *LicenseRepository) Create(ctx context.Context, lic *license.License) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.licenses[lic.LicenseKey]; exists {
		return ierr.ErrDuplicateKey
	}
	for _, existing := range r.licenses {
		if sameRef(lic.SubscriptionID, existing.SubscriptionID) || sameRef(lic.PaymentID, existing.PaymentID) {
			return fmt.Errorf("%w: license for this purchase already exists", ierr.ErrConflict)
		}
	}

	stored := lic.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	now := r.nowFn()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	if stored.ActiveDevices == nil {
		stored.ActiveDevices = []license.Device{}
	}
	r.licenses[stored.LicenseKey] = stored

	lic.ID = stored.ID
	lic.CreatedAt = stored.CreatedAt
	lic.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *LicenseRepository) FindByKey(ctx context.Context, key string) (*license.License, error) {
	return r.findOne(func(l *license.License) bool { return l.LicenseKey == key })
}

func (r *LicenseRepository) FindByKeyAndEmail(ctx context.Context, key, email string) (*license.License, error) {
	return r.findOne(func(l *license.License) bool { return l.LicenseKey == key && l.Email == email })
}

func (r *LicenseRepository) FindBySubscriptionID(ctx context.Context, subscriptionID string) (*license.License, error) {
	return r.findOne(func(l *license.License) bool {
		return l.SubscriptionID != nil && *l.SubscriptionID == subscriptionID
	})
}

func (r *LicenseRepository) FindByPaymentID(ctx context.Context, paymentID string) (*license.License, error) {
	return r.findOne(func(l *license.License) bool { return l.PaymentID != nil && *l.PaymentID == paymentID })
}

func (r *LicenseRepository) FindByFirebaseUID(ctx context.Context, uid string) (*license.License, error) {
	return r.findOne(func(l *license.License) bool { return l.FirebaseUID != nil && *l.FirebaseUID == uid })
}

func (r *LicenseRepository) List(ctx context.Context, params license.ListParams) ([]*license.License, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]*license.License, 0)
	for _, l := range r.licenses {
		if params.Status != nil && l.Status != *params.Status {
			continue
		}
		if params.Type != nil && l.Type != *params.Type {
			continue
		}
		if params.Email != nil && l.Email != *params.Email {
			continue
		}
		matched = append(matched, l.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if params.Offset >= len(matched) {
		return []*license.License{}, total, nil
	}
	matched = matched[params.Offset:]
	if params.Limit > 0 && params.Limit < len(matched) {
		matched = matched[:params.Limit]
	}
	return matched, total, nil
}

func (r *LicenseRepository) UpdateStatus(ctx context.Context, key string, status license.LicenseStatus) error {
	return r.mutate(key, func(l *license.License) bool {
		l.Status = status
		return true
	})
}

func (r *LicenseRepository) AddDevice(ctx context.Context, key string, dev license.Device, now time.Time) (bool, error) {
	added := false
	err := r.mutate(key, func(l *license.License) bool {
		if !l.IsUsable(now) || len(l.ActiveDevices) >= l.MaxDevices {
			return false
		}
		if _, exists := l.DeviceByHardwareID(dev.HardwareID); exists {
			return false
		}
		l.ActiveDevices = append(l.ActiveDevices, dev)
		added = true
		return true
	})
	if err != nil {
		return false, err
	}
	return added, nil
}

func (r *LicenseRepository) TouchDevice(ctx context.Context, key, hardwareID string, at time.Time) error {
	return r.mutate(key, func(l *license.License) bool {
		for i := range l.ActiveDevices {
			if l.ActiveDevices[i].HardwareID == hardwareID {
				l.ActiveDevices[i].LastUsedAt = at
				return true
			}
		}
		return false
	})
}

func (r *LicenseRepository) RemoveDevice(ctx context.Context, key, deviceID string) (bool, error) {
	removed := false
	err := r.mutate(key, func(l *license.License) bool {
		kept := make([]license.Device, 0, len(l.ActiveDevices))
		for _, d := range l.ActiveDevices {
			if d.DeviceID == deviceID {
				removed = true
				continue
			}
			kept = append(kept, d)
		}
		l.ActiveDevices = kept
		return removed
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

func (r *LicenseRepository) SetPasswordOnce(ctx context.Context, key, email, hash string, at time.Time) (bool, error) {
	set := false
	err := r.mutate(key, func(l *license.License) bool {
		if l.Email != email || l.PasswordSetAt != nil {
			return false
		}
		l.PasswordHash = &hash
		l.PasswordSetAt = &at
		set = true
		return true
	})
	if err != nil {
		return false, err
	}
	return set, nil
}

func (r *LicenseRepository) ResetPassword(ctx context.Context, key, email, hash string, at time.Time) (bool, error) {
	set := false
	err := r.mutate(key, func(l *license.License) bool {
		if l.Email != email {
			return false
		}
		l.PasswordHash = &hash
		l.PasswordSetAt = &at
		set = true
		return true
	})
	if err != nil {
		return false, err
	}
	return set, nil
}

func (r *LicenseRepository) RecordLogin(ctx context.Context, key string, at time.Time) error {
	return r.mutate(key, func(l *license.License) bool {
		l.LastLoginAt = &at
		return true
	})
}

func (r *LicenseRepository) LinkFirebaseUID(ctx context.Context, key, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok {
		return ierr.ErrLicenseNotFound
	}
	for k, other := range r.licenses {
		if k != key && other.FirebaseUID != nil && *other.FirebaseUID == uid {
			return ierr.ErrIdentityLinked
		}
	}
	l.FirebaseUID = &uid
	l.UpdatedAt = r.nowFn()
	return nil
}

func (r *LicenseRepository) ApplyStateChange(ctx context.Context, key string, change license.StateChange, eventAt time.Time) (bool, error) {
	applied := false
	err := r.mutate(key, func(l *license.License) bool {
		if l.LastEventAt != nil && l.LastEventAt.After(eventAt) {
			return false
		}
		if change.PreserveBlocked && l.Status == license.StatusBlocked {
			return false
		}
		if change.RequireStatus != nil && l.Status != *change.RequireStatus {
			return false
		}
		l.Status = change.Status
		switch {
		case change.EndGrace:
			l.NextBillingDate = nil
		case change.NextBillingDate != nil:
			next := *change.NextBillingDate
			l.NextBillingDate = &next
		}
		at := eventAt
		l.LastEventAt = &at
		applied = true
		return true
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *LicenseRepository) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, l := range r.licenses {
		if l.Status == license.StatusCancelled && l.NextBillingDate != nil && !l.NextBillingDate.After(now) {
			l.Status = license.StatusExpired
			l.UpdatedAt = r.nowFn()
			n++
		}
	}
	return n, nil
}

func (r *LicenseRepository) findOne(match func(*license.License) bool) (*license.License, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, l := range r.licenses {
		if match(l) {
			return l.Clone(), nil
		}
	}
	return nil, ierr.ErrLicenseNotFound
}

// mutate runs fn on the stored license under the write lock; fn reports whether it changed anything.
func (r *LicenseRepository) mutate(key string, fn func(*license.License) bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.licenses[key]
	if !ok {
		return ierr.ErrLicenseNotFound
	}
	if fn(l) {
		l.UpdatedAt = r.nowFn()
	}
	return nil
}

func sameRef(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
