package session

// IsValid checks if the role is one of the predefined valid roles
func IsValidRole(r UserRole) bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// ParseRole normalizes a raw role string, falling back to guest.
func ParseRole(raw string) (UserRole, bool) {
	if IsValidRole(raw) {
		return raw, true
	}
	return RoleGuest, false
}

// RoleCapabilities summarizes what a role may do; the permissions dashboard
// renders one row per capability.
type RoleCapabilities struct {
	Role      UserRole `json:"role"`
	CanRead   bool     `json:"can_read"`
	CanEdit   bool     `json:"can_edit"`
	CanCreate bool     `json:"can_create"`
	CanDelete bool     `json:"can_delete"`
}

// CapabilitiesFor expands a role into its capability set.
func CapabilitiesFor(r UserRole) RoleCapabilities {
	return RoleCapabilities{
		Role:      r,
		CanRead:   roleCanRead(r),
		CanEdit:   roleCanEdit(r),
		CanCreate: roleCanCreate(r),
		CanDelete: roleCanDelete(r),
	}
}

func roleCanRead(r UserRole) bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

func roleCanEdit(r UserRole) bool {
	switch r {
	case RoleMember, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

func roleCanCreate(r UserRole) bool {
	switch r {
	case RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

func roleCanDelete(r UserRole) bool {
	return r == RoleOwner
}

// RoleIsAtLeast checks if the role meets the minimum required level.
func RoleIsAtLeast(r, minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleGuest:  0,
		RoleMember: 1,
		RoleAdmin:  2,
		RoleOwner:  3,
	}

	level, ok := roleHierarchy[r]
	if !ok {
		return false
	}

	minLevel, ok := roleHierarchy[minRole]
	if !ok {
		return false
	}

	return level >= minLevel
}
