package authz

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
		ok   bool
	}{
		{raw: "0", want: RoleViewer, ok: true},
		{raw: " 1 ", want: RoleEditor, ok: true},
		{raw: "2", want: RoleAdmin, ok: true},
		{raw: "Admin", want: RoleAdmin, ok: true},
		{raw: "editor", want: RoleEditor, ok: true},
		{raw: "3", ok: false},
		{raw: "-1", ok: false},
		{raw: "root", ok: false},
		{raw: "", ok: false},
	}
	for _, tc := range cases {
		got, err := ParseRole(tc.raw)
		if !tc.ok {
			assert.Error(t, err, tc.raw)
			continue
		}
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestRoleOrderingAndLabels(t *testing.T) {
	assert.Equal(t, 0, int(RoleViewer))
	assert.Equal(t, 1, int(RoleEditor))
	assert.Equal(t, 2, int(RoleAdmin))
	assert.True(t, RoleAdmin.AtLeast(RoleEditor))
	assert.False(t, RoleViewer.AtLeast(RoleEditor))
	assert.False(t, Role(7).AtLeast(RoleViewer))
	assert.Equal(t, "User", RoleViewer.Label())
	assert.Equal(t, "unknown", Role(-1).String())
}

func TestPermissionTable(t *testing.T) {
	assert.Equal(t, []Operation{OpRead}, Permissions(RoleViewer))
	assert.Equal(t, []Operation{OpRead, OpCreate, OpUpdate}, Permissions(RoleEditor))
	assert.Equal(t, []Operation{OpRead, OpCreate, OpUpdate, OpDelete}, Permissions(RoleAdmin))
	assert.Empty(t, Permissions(Role(9)))

	perms := Permissions(RoleViewer)
	perms[0] = OpDelete
	assert.False(t, Permits(RoleViewer, OpDelete), "returned slice must be a copy")
}

func TestPermissionsAreMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	ops := Operations()
	properties.Property("a higher role is granted everything a lower role is", prop.ForAll(
		func(a, b, opIdx int) bool {
			lo, hi := Role(a), Role(b)
			if lo > hi {
				lo, hi = hi, lo
			}
			op := ops[opIdx]
			return !Permits(lo, op) || Permits(hi, op)
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
		gen.IntRange(0, len(ops)-1),
	))

	properties.Property("AtLeast agrees with integer order on valid roles", prop.ForAll(
		func(a, b int) bool {
			return Role(a).AtLeast(Role(b)) == (a >= b)
		},
		gen.IntRange(0, 2),
		gen.IntRange(0, 2),
	))

	properties.Property("roles outside the enumeration are granted nothing", prop.ForAll(
		func(n, opIdx int) bool {
			return !Permits(Role(n), ops[opIdx])
		},
		gen.OneGenOf(gen.IntRange(-50, -1), gen.IntRange(3, 50)),
		gen.IntRange(0, len(ops)-1),
	))

	properties.TestingRun(t)
}
