package domain

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/samber/lo"
)

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleDike    Role = "DIKE"
	RoleUmum    Role = "UMUM"
	RoleUser    Role = "USER"
	RoleService Role = "SERVICE"
)

var allRoles = []Role{RoleAdmin, RoleDike, RoleUmum, RoleUser, RoleService}

// Roles returns every known role.
func Roles() []Role {
	return append([]Role(nil), allRoles...)
}

func (r Role) IsValid() bool {
	return lo.Contains(allRoles, r)
}

// IsEndUser reports whether the role may appear in an end-user credential.
// SERVICE is reserved for service tokens.
func (r Role) IsEndUser() bool {
	return r.IsValid() && r != RoleService
}

// IsStudent reports whether role is one of the student roles (DIKE, UMUM).
func IsStudent(role Role) bool {
	return role == RoleDike || role == RoleUmum
}

// IsPermitted is the coarse role gate: role must be one of allowed.
func IsPermitted(role Role, allowed ...Role) bool {
	if !role.IsValid() {
		return false
	}
	return lo.Contains(allowed, role)
}

// Permission has the form resource:action[:scope], e.g. payment:read:self.
type Permission string

var permissionPattern = regexp.MustCompile(`^[a-z][a-z-]*:[a-z][a-z-]*(:[a-z][a-z-]*)?$`)

func (p Permission) IsValid() bool {
	return permissionPattern.MatchString(string(p))
}

const (
	PermPaymentCreateSelf  Permission = "payment:create:self"
	PermPaymentReadSelf    Permission = "payment:read:self"
	PermPaymentRead        Permission = "payment:read"
	PermPaymentUpdateSelf  Permission = "payment:update:self"
	PermPaymentApprove     Permission = "payment:approve"
	PermPaymentRefund      Permission = "payment:refund"
	PermEnrollmentReadSelf Permission = "enrollment:read:self"
	PermEnrollmentRead     Permission = "enrollment:read"
	PermEnrollmentCreate   Permission = "enrollment:create"
	PermCourseRead         Permission = "course:read"
	PermCourseWrite        Permission = "course:write"
	PermMaterialRead       Permission = "material:read"
	PermAssignmentSubmit   Permission = "assignment:submit:self"
	PermAssignmentGrade    Permission = "assignment:grade"
	PermUserReadSelf       Permission = "user:read:self"
	PermUserRead           Permission = "user:read"
	PermNotificationSend   Permission = "notification:send"
	PermNotificationManage Permission = "notification:manage"
)

// DefaultGrants returns a fresh copy of the platform's role grants.
func DefaultGrants() map[Role][]Permission {
	student := []Permission{
		PermPaymentCreateSelf,
		PermPaymentReadSelf,
		PermPaymentUpdateSelf,
		PermEnrollmentReadSelf,
		PermCourseRead,
		PermMaterialRead,
		PermAssignmentSubmit,
		PermUserReadSelf,
	}
	return map[Role][]Permission{
		RoleAdmin: {
			PermPaymentRead,
			PermPaymentApprove,
			PermPaymentRefund,
			PermEnrollmentRead,
			PermCourseRead,
			PermCourseWrite,
			PermMaterialRead,
			PermAssignmentGrade,
			PermUserRead,
			PermNotificationManage,
		},
		RoleDike: append([]Permission(nil), student...),
		RoleUmum: append([]Permission(nil), student...),
		RoleUser: {
			PermCourseRead,
			PermUserReadSelf,
		},
		RoleService: {
			PermPaymentApprove,
			PermEnrollmentCreate,
			PermEnrollmentRead,
			PermCourseRead,
			PermUserRead,
			PermNotificationSend,
		},
	}
}

// PermissionTable maps roles to permission sets. It is built once at start-up
// and never mutated afterwards, so lookups need no locking.
type PermissionTable struct {
	grants map[Role]map[Permission]struct{}
}

// NewPermissionTable copies grants into an immutable table. Every known role
// must hold at least one well-formed permission.
func NewPermissionTable(grants map[Role][]Permission) (*PermissionTable, error) {
	t := &PermissionTable{grants: make(map[Role]map[Permission]struct{}, len(grants))}
	for role, perms := range grants {
		if !role.IsValid() {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		set := make(map[Permission]struct{}, len(perms))
		for _, p := range perms {
			if !p.IsValid() {
				return nil, fmt.Errorf("role %s: malformed permission %q", role, p)
			}
			set[p] = struct{}{}
		}
		t.grants[role] = set
	}
	for _, role := range allRoles {
		if len(t.grants[role]) == 0 {
			return nil, fmt.Errorf("role %s has no permissions", role)
		}
	}
	return t, nil
}

func MustNewPermissionTable(grants map[Role][]Permission) *PermissionTable {
	t, err := NewPermissionTable(grants)
	if err != nil {
		panic(fmt.Sprintf("invalid permission table: %v", err))
	}
	return t
}

// DefaultPermissionTable builds the table from DefaultGrants.
func DefaultPermissionTable() *PermissionTable {
	return MustNewPermissionTable(DefaultGrants())
}

// HasPermission is total: unknown roles or permissions yield false.
func (t *PermissionTable) HasPermission(role Role, permission Permission) bool {
	if t == nil {
		return false
	}
	_, ok := t.grants[role][permission]
	return ok
}

// Permissions returns the sorted permissions granted to role.
func (t *PermissionTable) Permissions(role Role) []Permission {
	if t == nil {
		return nil
	}
	perms := lo.Keys(t.grants[role])
	sort.Slice(perms, func(i, j int) bool { return perms[i] < perms[j] })
	return perms
}
