package model

// Permission represents a string code for a specific system action.
type Permission string

const (
	// PermissionStudentsRead allows viewing student lists and details.
	PermissionStudentsRead Permission = "students:read"

	// PermissionStudentsWrite allows creating and updating students.
	PermissionStudentsWrite Permission = "students:write"

	// PermissionStudentsResetSession allows resetting a student's active session.
	PermissionStudentsResetSession Permission = "students:reset_session"

	// PermissionQuizzesRead allows viewing quiz lists and details.
	PermissionQuizzesRead Permission = "quizzes:read"

	// PermissionQuizzesWriteOwn allows creating quizzes and updating own quizzes.
	PermissionQuizzesWriteOwn Permission = "quizzes:write_own"

	// PermissionQuizzesPublish allows publishing quizzes to make them available to students.
	PermissionQuizzesPublish Permission = "quizzes:publish"

	// PermissionResultsRead allows viewing attempt results and violation logs.
	PermissionResultsRead Permission = "results:read"

	// PermissionMonitorRead allows watching live attempts.
	PermissionMonitorRead Permission = "monitor:read"

	// PermissionAdminsRead allows viewing admin user lists and details.
	PermissionAdminsRead Permission = "admins:read"

	// PermissionAdminsWrite allows creating, updating, and deleting admin users.
	PermissionAdminsWrite Permission = "admins:write"

	// PermissionRolesRead allows viewing admin roles and permissions.
	PermissionRolesRead Permission = "roles:read"

	// PermissionRolesWrite allows creating, updating, and deleting admin roles.
	PermissionRolesWrite Permission = "roles:write"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionStudentsRead,
	PermissionStudentsWrite,
	PermissionStudentsResetSession,
	PermissionQuizzesRead,
	PermissionQuizzesWriteOwn,
	PermissionQuizzesPublish,
	PermissionResultsRead,
	PermissionMonitorRead,
	PermissionAdminsRead,
	PermissionAdminsWrite,
	PermissionRolesRead,
	PermissionRolesWrite,
}
