package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edumanage/academy-api/internal/models"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

type recordedDenial struct {
	actor    Actor
	resource Resource
	action   Action
}

type denialRecorder struct {
	denials []recordedDenial
}

func (d *denialRecorder) ScopeDenied(actor Actor, resource Resource, action Action) {
	d.denials = append(d.denials, recordedDenial{actor: actor, resource: resource, action: action})
}

func branchPtr(id string) *string { return &id }

func TestResolveSuperAdminPassthrough(t *testing.T) {
	r := NewResolver(nil)
	actor := Actor{ID: "u1", Role: models.RoleSuperAdmin}

	f, err := r.Resolve(actor, ResourceEnrollments, ActionRead, Filters{BranchID: "b2", StudentID: "s9"})
	require.NoError(t, err)
	assert.Equal(t, "b2", f.BranchID)
	assert.Equal(t, "s9", f.StudentID)
}

func TestResolveCoachAdminForcesOwnBranch(t *testing.T) {
	r := NewResolver(nil)
	actor := Actor{ID: "u1", Role: models.RoleCoachAdmin, BranchID: branchPtr("b1")}

	f, err := r.Resolve(actor, ResourceEnrollments, ActionRead, Filters{})
	require.NoError(t, err)
	assert.Equal(t, "b1", f.BranchID)

	// explicit request for a foreign branch is rejected, not silently rewritten
	_, err = r.Resolve(actor, ResourceEnrollments, ActionRead, Filters{BranchID: "b2"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestResolveNeverLeaksForeignBranch(t *testing.T) {
	r := NewResolver(nil)
	actors := []Actor{
		{ID: "a1", Role: models.RoleCoachAdmin, BranchID: branchPtr("b1")},
		{ID: "c1", Role: models.RoleCoach, BranchID: branchPtr("b1")},
		{ID: "s1", Role: models.RoleStudent, BranchID: branchPtr("b1")},
	}
	for _, actor := range actors {
		f, err := r.Resolve(actor, ResourceAttendance, ActionRead, Filters{})
		require.NoError(t, err, "role %s", actor.Role)
		assert.Equal(t, "b1", f.BranchID, "role %s", actor.Role)
	}
}

func TestResolveStudentForcedToSelf(t *testing.T) {
	r := NewResolver(nil)
	actor := Actor{ID: "s1", Role: models.RoleStudent, BranchID: branchPtr("b1")}

	f, err := r.Resolve(actor, ResourcePayments, ActionRead, Filters{})
	require.NoError(t, err)
	assert.Equal(t, "s1", f.StudentID)

	_, err = r.Resolve(actor, ResourcePayments, ActionRead, Filters{StudentID: "s2"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestResolveDeniesUnpermittedAction(t *testing.T) {
	r := NewResolver(nil)
	actor := Actor{ID: "s1", Role: models.RoleStudent, BranchID: branchPtr("b1")}

	_, err := r.Resolve(actor, ResourceBranches, ActionDelete, Filters{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	_, err = r.Resolve(actor, ResourceActivityLogs, ActionRead, Filters{})
	require.Error(t, err)
}

func TestResolveCoachWithoutBranchDenied(t *testing.T) {
	r := NewResolver(nil)
	actor := Actor{ID: "c1", Role: models.RoleCoach}

	_, err := r.Resolve(actor, ResourceAttendance, ActionCreate, Filters{})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestResolveRecordsDenials(t *testing.T) {
	rec := &denialRecorder{}
	r := NewResolver(rec)
	actor := Actor{ID: "s1", Role: models.RoleStudent, BranchID: branchPtr("b1")}

	_, err := r.Resolve(actor, ResourceUsers, ActionCreate, Filters{})
	require.Error(t, err)

	require.Len(t, rec.denials, 1)
	assert.Equal(t, ResourceUsers, rec.denials[0].resource)
	assert.Equal(t, ActionCreate, rec.denials[0].action)
	assert.Equal(t, "s1", rec.denials[0].actor.ID)
}

func TestPolicyTableSpotChecks(t *testing.T) {
	r := NewResolver(nil)

	assert.True(t, r.Allowed(models.RoleSuperAdmin, ResourceBranches, ActionDelete))
	assert.False(t, r.Allowed(models.RoleCoachAdmin, ResourceBranches, ActionDelete))
	assert.True(t, r.Allowed(models.RoleCoach, ResourceAttendance, ActionCreate))
	assert.False(t, r.Allowed(models.RoleStudent, ResourceReports, ActionRead))
	assert.True(t, r.Allowed(models.RoleStudent, ResourceComplaints, ActionCreate))
	assert.False(t, r.Allowed(models.RoleCoach, ResourcePayments, ActionUpdate))
}
