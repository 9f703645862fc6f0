// Package policy decides who may do what to audits and users. It is pure:
// callers load the records and pass in today's date.
//
// An audit is open while its date equals today and locked afterwards. The
// lock is time driven, there is no stored state for it, and it binds admins
// as much as owners. Locked audits stay readable.
package policy

import (
	"github.com/dmitrijs2005/auditrack/internal/common"
	"github.com/dmitrijs2005/auditrack/internal/server/models"
)

// RequireAdmin fails with common.ErrForbidden unless u is an admin.
func RequireAdmin(u *models.User) error {
	if u == nil || u.Role != models.RoleAdmin {
		return common.ErrForbidden
	}
	return nil
}

// CanCreateAudit fails with common.ErrForbidden unless u is an auditor.
func CanCreateAudit(u *models.User) error {
	if u == nil || u.Role != models.RoleAuditor {
		return common.ErrForbidden
	}
	return nil
}

// ListScope tells which audits u may list. An empty owner means all audits.
// The owner field is only shown to callers that can see other people's audits.
func ListScope(u *models.User) (owner string, withAuditor bool) {
	if u.Role == models.RoleAuditor {
		return u.Name, false
	}
	return "", true
}

// CanMutateAudit checks update and delete rights: the caller must be an admin
// or the owner, and the audit must still be open today. Ownership is checked
// first so non-owners learn nothing about the window.
func CanMutateAudit(u *models.User, a *models.Audit, today models.Day) error {
	if u == nil {
		return common.ErrForbidden
	}
	if u.Role != models.RoleAdmin && a.Auditor != u.Name {
		return common.ErrForbidden
	}
	if !IsOpen(a, today) {
		return common.ErrStaleWindow
	}
	return nil
}

// IsOpen reports whether a is still inside its edit window.
func IsOpen(a *models.Audit, today models.Day) bool {
	return a.Date == today
}

// CanDeleteUser enforces that the last administrator survives. adminCount is
// the number of admins including target.
func CanDeleteUser(target *models.User, adminCount int) error {
	if target.Role == models.RoleAdmin && adminCount <= 1 {
		return common.ErrLastAdmin
	}
	return nil
}
