package access

// AnonymousLevel is the privilege level an unauthenticated reader is evaluated at.
const AnonymousLevel = 1

// Principal is the authenticated identity behind a request.
type Principal struct {
	ID             int64
	PrivilegeLevel int
}

// EffectiveLevel returns the level used for read gates; a nil principal reads as anonymous.
func EffectiveLevel(principal *Principal) int {
	if principal == nil {
		return AnonymousLevel
	}
	return principal.PrivilegeLevel
}
