package model

// Role is how an application participates in ducking.
type Role int

const (
	RoleUnclassified Role = iota
	RolePriority
	RoleMusic
	RoleIgnored
)

// RoleNames maps roles to their display names.
var RoleNames = map[Role]string{
	RoleUnclassified: "unclassified",
	RolePriority:     "priority",
	RoleMusic:        "music",
	RoleIgnored:      "ignored",
}

// String returns the display name of the role.
func (r Role) String() string {
	if name, ok := RoleNames[r]; ok {
		return name
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	for role, name := range RoleNames {
		if name == string(text) {
			*r = role
			return nil
		}
	}
	*r = RoleUnclassified
	return nil
}

// Classification is an immutable identity to role table.
// Build one per configuration change and share the pointer; never mutate it.
type Classification struct {
	priority map[string]struct{}
	music    map[string]struct{}
	ignored  map[string]struct{}
}

// NewClassification builds a table from the three application lists.
// Identities are normalized. An identity listed as both priority and music
// is kept in the table and resolves to RoleIgnored.
func NewClassification(priority, music, ignored []string) *Classification {
	return &Classification{
		priority: toSet(priority),
		music:    toSet(music),
		ignored:  toSet(ignored),
	}
}

func toSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if id := NormalizeIdentity(name); id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Role returns the role for an identity. Ignored wins over everything, and an
// identity present in both the priority and music sets is treated as ignored.
func (c *Classification) Role(identity string) Role {
	if c == nil {
		return RoleUnclassified
	}
	id := NormalizeIdentity(identity)
	if _, ok := c.ignored[id]; ok {
		return RoleIgnored
	}
	_, isPriority := c.priority[id]
	_, isMusic := c.music[id]
	switch {
	case isPriority && isMusic:
		return RoleIgnored
	case isPriority:
		return RolePriority
	case isMusic:
		return RoleMusic
	default:
		return RoleUnclassified
	}
}

// Ambiguous reports whether the identity is listed as both priority and music.
func (c *Classification) Ambiguous(identity string) bool {
	if c == nil {
		return false
	}
	id := NormalizeIdentity(identity)
	_, isPriority := c.priority[id]
	_, isMusic := c.music[id]
	return isPriority && isMusic
}

// Len returns the number of distinct identities in the table.
func (c *Classification) Len() int {
	if c == nil {
		return 0
	}
	seen := make(map[string]struct{}, len(c.priority)+len(c.music)+len(c.ignored))
	for _, set := range []map[string]struct{}{c.priority, c.music, c.ignored} {
		for id := range set {
			seen[id] = struct{}{}
		}
	}
	return len(seen)
}
