// Package optimisticlock implements the version protocol shared by Instances, HoldingsRecords and Items.
//
// An incoming version that matches the stored version is accepted and the stored version advances by one.
// The sentinel -1 requests suppression of the check; it is honored only while the Policy permits it,
// and a suppressed write stores no version. Everything else is a lock conflict.
package optimisticlock

import (
	"time"

	"github.com/librarystack/inventory-storage-go/inventory"
)

// InitialVersion is the version stored with a newly inserted record.
const InitialVersion = 1

// Policy decides whether lock suppression is currently permitted.
// Suppression is allowed strictly before AllowSuppressionUntil, a zero value never allows it.
type Policy struct {
	AllowSuppressionUntil time.Time
	now                   func() time.Time
}

// NewPolicy builds a Policy that permits suppression until the given instant.
func NewPolicy(allowSuppressionUntil time.Time) Policy {
	return Policy{AllowSuppressionUntil: allowSuppressionUntil, now: time.Now}
}

// ForbidSuppression is the Policy that never permits suppression.
func ForbidSuppression() Policy {
	return Policy{now: time.Now}
}

// WithClock returns a copy of the Policy that reads the current time from now.
func (p Policy) WithClock(now func() time.Time) Policy {
	p.now = now
	return p
}

// SuppressionAllowed reports whether a -1 version may bypass the check right now.
func (p Policy) SuppressionAllowed() bool {
	if p.AllowSuppressionUntil.IsZero() {
		return false
	}

	now := time.Now
	if p.now != nil {
		now = p.now
	}

	return now().Before(p.AllowSuppressionUntil)
}

// Guard applies the version protocol for one Policy.
type Guard struct {
	policy Policy
}

// NewGuard creates a Guard for the given Policy.
func NewGuard(policy Policy) Guard {
	return Guard{policy: policy}
}

// Policy returns the Policy of the Guard.
func (g Guard) Policy() Policy {
	return g.policy
}

// Check decides a replace of an existing record.
// It returns the version to store, nil meaning the stored document carries no version.
func (g Guard) Check(incoming, stored *int) (*int, error) {
	if IsSuppressed(incoming) {
		if g.policy.SuppressionAllowed() {
			return nil, nil
		}

		return nil, inventory.ErrOptimisticLockConflict
	}

	if !sameVersion(incoming, stored) {
		return nil, inventory.ErrOptimisticLockConflict
	}

	return g.Next(stored), nil
}

// Next returns the version following the stored one, for writes the server makes on its own behalf.
func (g Guard) Next(stored *int) *int {
	if stored == nil {
		return inventory.VersionOf(InitialVersion)
	}

	return inventory.VersionOf(*stored + 1)
}

// CheckInsert decides the version of a record that does not exist yet.
func (g Guard) CheckInsert(_ *int) *int {
	return inventory.VersionOf(InitialVersion)
}

// ResolveBatch rewrites the versions of a whole batch once, before anything is written.
//
// With optimisticLocking every -1 is cleared so the check is enforced record by record.
// Without it the whole batch is rejected unless the Policy permits suppression,
// in which case every record is marked with -1.
func ResolveBatch[R inventory.Record](g Guard, records []R, optimisticLocking bool) error {
	if optimisticLocking {
		for _, rec := range records {
			if IsSuppressed(rec.RecordVersion()) {
				rec.SetRecordVersion(nil)
			}
		}

		return nil
	}

	if !g.policy.SuppressionAllowed() {
		return inventory.ErrLockSuppressionForbidden
	}

	for _, rec := range records {
		rec.SetRecordVersion(inventory.VersionOf(inventory.SuppressVersion))
	}

	return nil
}

// IsSuppressed reports whether the version is the suppression sentinel.
func IsSuppressed(version *int) bool {
	return version != nil && *version == inventory.SuppressVersion
}

func sameVersion(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	return *a == *b
}
