package constants

const (
	ViewRegistry        = "view_registry"
	SubmitDocuments     = "submit_documents"
	SubmitPayment       = "submit_payment"
	ReviewDocuments     = "review_documents"
	ReviewPayments      = "review_payments"
	ResendNotifications = "resend_notifications"
	ManageUsers         = "manage_users"
)

// PermissionRoles maps each permission to roles allowed to perform it.
var PermissionRoles = map[string][]string{
	ViewRegistry:        {Member, Reviewer, Admin},
	SubmitDocuments:     {Member, Admin},
	SubmitPayment:       {Member, Admin},
	ReviewDocuments:     {Reviewer, Admin},
	ReviewPayments:      {Reviewer, Admin},
	ResendNotifications: {Reviewer, Admin},
	ManageUsers:         {Admin},
}

// AllowedRole returns true if role is in the list of allowed roles for the permission.
func AllowedRole(permission, role string) bool {
	roles, ok := PermissionRoles[permission]
	if !ok {
		return false
	}
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
