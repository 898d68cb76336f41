package domain

// Permission names a single capability embedded into token claims.
type Permission string

const (
	PermDonationCreate      Permission = "DONATION_CREATE"
	PermDonationViewOwn     Permission = "DONATION_VIEW_OWN"
	PermDonationUploadImage Permission = "DONATION_UPLOAD_IMAGE"
	PermDonationViewAll     Permission = "DONATION_VIEW_ALL"
	PermDonationVerify      Permission = "DONATION_VERIFY"
	PermDonationReject      Permission = "DONATION_REJECT"

	PermRequestCreate  Permission = "REQUEST_CREATE"
	PermRequestViewOwn Permission = "REQUEST_VIEW_OWN"
	PermRequestViewAll Permission = "REQUEST_VIEW_ALL"

	PermMatchViewAssigned    Permission = "MATCH_VIEW_ASSIGNED"
	PermMatchViewAll         Permission = "MATCH_VIEW_ALL"
	PermMatchUpdateStatus    Permission = "MATCH_UPDATE_STATUS"
	PermMatchConfirmPickup   Permission = "MATCH_CONFIRM_PICKUP"
	PermMatchConfirmDelivery Permission = "MATCH_CONFIRM_DELIVERY"

	PermPartnerDashboardView Permission = "PARTNER_DASHBOARD_VIEW"
	PermPartnerManage        Permission = "PARTNER_MANAGE"
	PermPartnerVerify        Permission = "PARTNER_VERIFY"

	PermAdminDashboardView Permission = "ADMIN_DASHBOARD_VIEW"
	PermReportsView        Permission = "REPORTS_VIEW"
	PermSettingsManage     Permission = "SETTINGS_MANAGE"
	PermUsersManage        Permission = "USERS_MANAGE"
)

// AllPermissions returns the full capability set, granted to admins.
func AllPermissions() []Permission {
	return []Permission{
		PermDonationCreate, PermDonationViewOwn, PermDonationUploadImage,
		PermDonationViewAll, PermDonationVerify, PermDonationReject,
		PermRequestCreate, PermRequestViewOwn, PermRequestViewAll,
		PermMatchViewAssigned, PermMatchViewAll, PermMatchUpdateStatus,
		PermMatchConfirmPickup, PermMatchConfirmDelivery,
		PermPartnerDashboardView, PermPartnerManage, PermPartnerVerify,
		PermAdminDashboardView, PermReportsView, PermSettingsManage, PermUsersManage,
	}
}

// PermissionsForRole maps a role to its capability set. The mapping is closed:
// unknown roles receive nothing.
func PermissionsForRole(role UserRole) []Permission {
	switch role {
	case RoleDonor:
		return []Permission{PermDonationCreate, PermDonationUploadImage, PermDonationViewOwn}
	case RoleRequester:
		return []Permission{PermRequestCreate, PermRequestViewOwn}
	case RolePartnerPharmacy, RolePartnerNGO, RolePartnerVolunteer:
		return []Permission{
			PermPartnerDashboardView, PermMatchViewAssigned, PermMatchUpdateStatus,
			PermMatchConfirmPickup, PermMatchConfirmDelivery,
		}
	case RoleAdmin:
		return AllPermissions()
	default:
		return nil
	}
}

// OtpContext scopes an OTP flow and the capabilities a temp token grants.
type OtpContext string

const (
	OtpContextDonation OtpContext = "DONATION"
	OtpContextRequest  OtpContext = "REQUEST"
)

// Valid reports whether the context is one of the known flows.
func (c OtpContext) Valid() bool {
	return c == OtpContextDonation || c == OtpContextRequest
}

// GrantedPermissions returns the scoped capability set a verified OTP confers.
func (c OtpContext) GrantedPermissions() []Permission {
	switch c {
	case OtpContextDonation:
		return []Permission{PermDonationUploadImage, PermDonationViewOwn}
	case OtpContextRequest:
		return []Permission{PermRequestViewOwn}
	default:
		return nil
	}
}

// PermissionStrings converts a permission set to plain strings for claims.
func PermissionStrings(perms []Permission) []string {
	if len(perms) == 0 {
		return nil
	}
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		out = append(out, string(p))
	}
	return out
}
