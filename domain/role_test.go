package domain

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPermissionTableCoversEveryRole(t *testing.T) {
	table := DefaultPermissionTable()
	for _, role := range Roles() {
		assert.NotEmpty(t, table.Permissions(role), "role %s", role)
	}
}

func TestHasPermission(t *testing.T) {
	table := DefaultPermissionTable()

	cases := []struct {
		name string
		role Role
		perm Permission
		want bool
	}{
		{"admin grades", RoleAdmin, PermAssignmentGrade, true},
		{"admin approves", RoleAdmin, PermPaymentApprove, true},
		{"student reads own user", RoleDike, PermUserReadSelf, true},
		{"student cannot grade", RoleUmum, PermAssignmentGrade, false},
		{"student cannot approve", RoleDike, PermPaymentApprove, false},
		{"plain user cannot pay", RoleUser, PermPaymentCreateSelf, false},
		{"service creates enrollments", RoleService, PermEnrollmentCreate, true},
		{"unknown role", Role("ROOT"), PermPaymentRead, false},
		{"unknown permission", RoleAdmin, Permission("payment:delete"), false},
		{"empty inputs", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, table.HasPermission(tc.role, tc.perm))
		})
	}
}

func TestHasPermissionNilTable(t *testing.T) {
	var table *PermissionTable
	assert.False(t, table.HasPermission(RoleAdmin, PermPaymentRead))
	assert.Nil(t, table.Permissions(RoleAdmin))
}

func TestHasPermissionDeterministicUnderConcurrency(t *testing.T) {
	table := DefaultPermissionTable()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				assert.True(t, table.HasPermission(RoleAdmin, PermPaymentApprove))
				assert.False(t, table.HasPermission(RoleUser, PermPaymentApprove))
			}
		}()
	}
	wg.Wait()
}

func TestNewPermissionTableRejectsInvalidGrants(t *testing.T) {
	t.Run("role without permissions", func(t *testing.T) {
		grants := DefaultGrants()
		grants[RoleUser] = nil
		_, err := NewPermissionTable(grants)
		require.Error(t, err)
	})

	t.Run("missing role", func(t *testing.T) {
		grants := DefaultGrants()
		delete(grants, RoleService)
		_, err := NewPermissionTable(grants)
		require.Error(t, err)
	})

	t.Run("malformed permission", func(t *testing.T) {
		grants := DefaultGrants()
		grants[RoleUser] = append(grants[RoleUser], "Course Read")
		_, err := NewPermissionTable(grants)
		require.Error(t, err)
	})

	t.Run("unknown role", func(t *testing.T) {
		grants := DefaultGrants()
		grants[Role("ROOT")] = []Permission{PermCourseRead}
		_, err := NewPermissionTable(grants)
		require.Error(t, err)
	})
}

func TestPermissionTableIsImmutable(t *testing.T) {
	grants := DefaultGrants()
	table := MustNewPermissionTable(grants)

	grants[RoleUser] = append(grants[RoleUser], PermPaymentApprove)
	assert.False(t, table.HasPermission(RoleUser, PermPaymentApprove))

	perms := table.Permissions(RoleUser)
	perms[0] = PermPaymentApprove
	assert.False(t, table.HasPermission(RoleUser, PermPaymentApprove))
}

func TestIsStudent(t *testing.T) {
	assert.True(t, IsStudent(RoleDike))
	assert.True(t, IsStudent(RoleUmum))
	assert.False(t, IsStudent(RoleAdmin))
	assert.False(t, IsStudent(RoleUser))
	assert.False(t, IsStudent(RoleService))
	assert.False(t, IsStudent(Role("dike")))
}

func TestIsPermitted(t *testing.T) {
	assert.True(t, IsPermitted(RoleAdmin, RoleAdmin, RoleService))
	assert.False(t, IsPermitted(RoleUser, RoleAdmin))
	assert.False(t, IsPermitted(RoleAdmin))
	assert.False(t, IsPermitted(Role("ROOT"), Role("ROOT")))
}

func TestServiceRoleIsNotEndUser(t *testing.T) {
	assert.False(t, RoleService.IsEndUser())
	for _, role := range []Role{RoleAdmin, RoleDike, RoleUmum, RoleUser} {
		assert.True(t, role.IsEndUser(), "role %s", role)
	}
}
