package discord

import "slices"

// Gate decides who may run which command. Moderation commands need one of the staff roles;
// commissions need the developer role, or a staff role when no developer role is configured.
type Gate struct {
	StaffRoles    []string
	DeveloperRole string
}

func (g Gate) Allows(command string, roles []string) bool {
	if command == CmdCommission && g.DeveloperRole != "" {
		return slices.Contains(roles, g.DeveloperRole)
	}
	for _, r := range roles {
		if slices.Contains(g.StaffRoles, r) {
			return true
		}
	}
	return false
}

func (g Gate) DenialMessage(command string) string {
	if command == CmdCommission && g.DeveloperRole != "" {
		return "❌ You do not have permission to use this command. (Developer role required.)"
	}
	return "❌ You do not have permission to use this command. (Staff role required.)"
}
