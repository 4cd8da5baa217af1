package domain

// ProjectRole is the relationship between a user and a project
type ProjectRole string

const (
	RoleBuilder     ProjectRole = "builder"
	RoleOwner       ProjectRole = "owner"
	RoleParticipant ProjectRole = "participant"
)

// Permission is an action on a project or its estimates
type Permission string

const (
	ProjectRead        Permission = "project.read"
	ProjectUpdate      Permission = "project.update"
	ProjectDelete      Permission = "project.delete"
	ProjectAssignOwner Permission = "project.assign_owner"
	MembersManage      Permission = "members.manage"

	EstimateRead    Permission = "estimate.read"
	EstimateWrite   Permission = "estimate.write"
	EstimateSubmit  Permission = "estimate.submit"
	EstimateApprove Permission = "estimate.approve"
)

var rolePermissions = map[ProjectRole][]Permission{
	RoleBuilder: {
		ProjectRead, ProjectUpdate, ProjectDelete, ProjectAssignOwner, MembersManage,
		EstimateRead, EstimateWrite, EstimateSubmit,
	},
	RoleOwner: {
		ProjectRead, ProjectUpdate, MembersManage,
		EstimateRead, EstimateApprove,
	},
	RoleParticipant: {
		ProjectRead,
		EstimateRead,
	},
}

// Can reports whether role grants permission
func (r ProjectRole) Can(permission Permission) bool {
	for _, p := range rolePermissions[r] {
		if p == permission {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role
func (r ProjectRole) Valid() bool {
	_, ok := rolePermissions[r]
	return ok
}
