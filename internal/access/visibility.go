package access

// SentinelLevel is the reserved required level meaning "owner only".
const SentinelLevel = 999

// Decision is the outcome of a read-access check.
type Decision int

const (
	// Deny rejects the read.
	Deny Decision = iota
	// Allow permits the read through the numeric level gate.
	Allow
	// AllowOwnerBypass permits an owner to read their own owner-only article.
	AllowOwnerBypass
)

// Permitted reports whether the decision lets the read through.
func (d Decision) Permitted() bool {
	return d == Allow || d == AllowOwnerBypass
}

// RecordsView reports whether a permitted read counts as a view event.
// Owners reading their own private articles are not counted.
func (d Decision) RecordsView() bool {
	return d == Allow
}

func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case AllowOwnerBypass:
		return "allow_owner"
	default:
		return "deny"
	}
}

// Gate is the subset of an article the read decision depends on.
type Gate struct {
	OwnerID       int64
	RequiredLevel int
}

// CanRead decides whether principal (nil for anonymous) may read content behind gate.
func CanRead(gate Gate, principal *Principal) Decision {
	if gate.RequiredLevel == SentinelLevel {
		if principal != nil && principal.ID == gate.OwnerID {
			return AllowOwnerBypass
		}
		return Deny
	}
	if gate.RequiredLevel <= EffectiveLevel(principal) {
		return Allow
	}
	return Deny
}

// ValidRequiredLevel reports whether level may be stored as an article's required level.
func ValidRequiredLevel(level int) bool {
	return level == SentinelLevel || (level >= AnonymousLevel && level < SentinelLevel)
}
