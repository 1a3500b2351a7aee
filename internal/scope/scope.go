package scope

import (
	"github.com/edumanage/academy-api/internal/models"
	appErrors "github.com/edumanage/academy-api/pkg/errors"
)

// Resource names a scoped resource type.
type Resource string

const (
	ResourceUsers         Resource = "users"
	ResourceBranches      Resource = "branches"
	ResourceCourses       Resource = "courses"
	ResourceEnrollments   Resource = "enrollments"
	ResourceAttendance    Resource = "attendance"
	ResourcePayments      Resource = "payments"
	ResourceProducts      Resource = "products"
	ResourcePurchases     Resource = "purchases"
	ResourceComplaints    Resource = "complaints"
	ResourceRatings       Resource = "ratings"
	ResourceRequests      Resource = "requests"
	ResourceEvents        Resource = "events"
	ResourceNotifications Resource = "notifications"
	ResourceReports       Resource = "reports"
	ResourceActivityLogs  Resource = "activity_logs"
)

// Action names an operation on a resource.
type Action string

const (
	ActionRead    Action = "read"
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionApprove Action = "approve"
	ActionExport  Action = "export"
)

// Actor is the authenticated caller, passed explicitly into every resolver
// and service call.
type Actor struct {
	ID       string
	Role     models.UserRole
	BranchID *string
}

// IsAdmin reports whether the actor holds an administrative role.
func (a Actor) IsAdmin() bool {
	return a.Role == models.RoleSuperAdmin || a.Role == models.RoleCoachAdmin
}

// Filters is the query scope applied to a listing or lookup. Resolve
// narrows it according to the actor's role; resources ignore fields that
// do not apply to them.
type Filters struct {
	BranchID  string
	StudentID string
}

// DeniedRecorder observes authorization failures. Implementations must be
// fire-and-forget: they may not block or fail the calling operation.
type DeniedRecorder interface {
	ScopeDenied(actor Actor, resource Resource, action Action)
}

type policyKey struct {
	role     models.UserRole
	resource Resource
	action   Action
}

// Resolver decides, for every resource and action, which records an actor
// may see or mutate. Decisions come from a static role/resource/action
// table plus role-based filter forcing.
type Resolver struct {
	policy map[policyKey]struct{}
	denied DeniedRecorder
}

// NewResolver builds a resolver with the default policy table.
func NewResolver(denied DeniedRecorder) *Resolver {
	r := &Resolver{policy: make(map[policyKey]struct{}), denied: denied}
	r.installDefaultPolicy()
	return r
}

func (r *Resolver) allow(role models.UserRole, resource Resource, actions ...Action) {
	for _, action := range actions {
		r.policy[policyKey{role: role, resource: resource, action: action}] = struct{}{}
	}
}

func (r *Resolver) installDefaultPolicy() {
	admins := []models.UserRole{models.RoleSuperAdmin, models.RoleCoachAdmin}
	everyone := []models.UserRole{models.RoleSuperAdmin, models.RoleCoachAdmin, models.RoleCoach, models.RoleStudent}
	staff := []models.UserRole{models.RoleSuperAdmin, models.RoleCoachAdmin, models.RoleCoach}

	r.allow(models.RoleSuperAdmin, ResourceUsers, ActionCreate, ActionUpdate, ActionDelete)
	// branch admins manage users inside their own branch; the resolver pins
	// the branch and services check the target
	r.allow(models.RoleCoachAdmin, ResourceUsers, ActionUpdate)
	for _, role := range admins {
		r.allow(role, ResourceUsers, ActionRead)
	}

	r.allow(models.RoleSuperAdmin, ResourceBranches, ActionCreate, ActionUpdate, ActionDelete)
	for _, role := range everyone {
		r.allow(role, ResourceBranches, ActionRead)
	}

	r.allow(models.RoleSuperAdmin, ResourceCourses, ActionCreate, ActionDelete)
	for _, role := range admins {
		r.allow(role, ResourceCourses, ActionUpdate)
	}
	for _, role := range everyone {
		r.allow(role, ResourceCourses, ActionRead)
	}

	for _, role := range admins {
		r.allow(role, ResourceEnrollments, ActionCreate, ActionUpdate, ActionDelete)
	}
	for _, role := range everyone {
		r.allow(role, ResourceEnrollments, ActionRead)
	}

	for _, role := range staff {
		r.allow(role, ResourceAttendance, ActionCreate, ActionExport)
	}
	// students mark their own attendance by scanning a QR session
	r.allow(models.RoleStudent, ResourceAttendance, ActionCreate)
	for _, role := range everyone {
		r.allow(role, ResourceAttendance, ActionRead)
	}

	for _, role := range admins {
		r.allow(role, ResourcePayments, ActionCreate, ActionUpdate)
	}
	for _, role := range everyone {
		r.allow(role, ResourcePayments, ActionRead)
	}

	for _, role := range admins {
		r.allow(role, ResourceProducts, ActionCreate, ActionUpdate, ActionDelete)
	}
	for _, role := range everyone {
		r.allow(role, ResourceProducts, ActionRead)
		r.allow(role, ResourcePurchases, ActionCreate, ActionRead)
	}

	r.allow(models.RoleStudent, ResourceComplaints, ActionCreate)
	for _, role := range everyone {
		r.allow(role, ResourceComplaints, ActionRead)
	}
	for _, role := range admins {
		r.allow(role, ResourceComplaints, ActionUpdate)
	}

	r.allow(models.RoleStudent, ResourceRatings, ActionCreate)
	for _, role := range everyone {
		r.allow(role, ResourceRatings, ActionRead)
	}

	for _, role := range []models.UserRole{models.RoleStudent, models.RoleCoach, models.RoleCoachAdmin} {
		r.allow(role, ResourceRequests, ActionCreate)
	}
	for _, role := range everyone {
		r.allow(role, ResourceRequests, ActionRead)
	}
	for _, role := range admins {
		r.allow(role, ResourceRequests, ActionApprove)
	}

	for _, role := range admins {
		r.allow(role, ResourceEvents, ActionCreate, ActionUpdate, ActionDelete)
	}
	for _, role := range everyone {
		r.allow(role, ResourceEvents, ActionRead)
	}

	for _, role := range admins {
		r.allow(role, ResourceNotifications, ActionCreate, ActionUpdate, ActionDelete, ActionRead)
	}
	r.allow(models.RoleStudent, ResourceNotifications, ActionRead)

	for _, role := range staff {
		r.allow(role, ResourceReports, ActionRead, ActionExport)
	}

	r.allow(models.RoleSuperAdmin, ResourceActivityLogs, ActionRead)
}

// Allowed reports whether the role may perform the action at all,
// irrespective of filter scoping.
func (r *Resolver) Allowed(role models.UserRole, resource Resource, action Action) bool {
	_, ok := r.policy[policyKey{role: role, resource: resource, action: action}]
	return ok
}

// Resolve converts requested filters into the effective scope for the
// actor, or fails with Forbidden. For every non super_admin actor the
// returned filters never reference a branch other than the actor's own.
func (r *Resolver) Resolve(actor Actor, resource Resource, action Action, f Filters) (Filters, error) {
	if !r.Allowed(actor.Role, resource, action) {
		r.recordDenied(actor, resource, action)
		return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "insufficient permissions")
	}

	switch actor.Role {
	case models.RoleSuperAdmin:
		return f, nil

	case models.RoleCoachAdmin, models.RoleCoach:
		if actor.BranchID == nil || *actor.BranchID == "" {
			r.recordDenied(actor, resource, action)
			return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "actor has no branch assignment")
		}
		if f.BranchID != "" && f.BranchID != *actor.BranchID {
			r.recordDenied(actor, resource, action)
			return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "cannot access another branch")
		}
		f.BranchID = *actor.BranchID
		return f, nil

	case models.RoleStudent:
		if f.StudentID != "" && f.StudentID != actor.ID {
			r.recordDenied(actor, resource, action)
			return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "cannot access another student's data")
		}
		f.StudentID = actor.ID
		if actor.BranchID != nil && *actor.BranchID != "" {
			if f.BranchID != "" && f.BranchID != *actor.BranchID {
				r.recordDenied(actor, resource, action)
				return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "cannot access another branch")
			}
			f.BranchID = *actor.BranchID
		}
		return f, nil
	}

	r.recordDenied(actor, resource, action)
	return Filters{}, appErrors.Clone(appErrors.ErrForbidden, "unknown role")
}

func (r *Resolver) recordDenied(actor Actor, resource Resource, action Action) {
	if r.denied != nil {
		r.denied.ScopeDenied(actor, resource, action)
	}
}
