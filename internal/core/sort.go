// Package core provides ordering logic for audio sessions.
package core

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/jmylchreest/autoduck/internal/engine"
	"github.com/jmylchreest/autoduck/internal/model"
)

// SortField represents a field to sort by.
type SortField string

const (
	SortByRole     SortField = "role"
	SortByIdentity SortField = "identity"
	SortByPeak     SortField = "peak"
	SortByVolume   SortField = "volume"
)

// SortOrder represents ascending or descending order.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// SortOptions specifies sorting criteria.
type SortOptions struct {
	Field SortField // Field to sort by
	Order SortOrder // Sort order (asc/desc)
}

// DefaultSortOptions groups sessions by role, priority first.
func DefaultSortOptions() SortOptions {
	return SortOptions{
		Field: SortByRole,
		Order: SortAsc,
	}
}

// roleRank orders roles for display: priority, music, unclassified, ignored.
var roleRank = map[model.Role]int{
	model.RolePriority:     0,
	model.RoleMusic:        1,
	model.RoleUnclassified: 2,
	model.RoleIgnored:      3,
}

// Sort sorts sessions in place. Ties are broken by identity so the order is
// the same on every poll regardless of how the directory enumerated them.
func Sort(sessions []engine.SessionStatus, opts SortOptions) {
	if len(sessions) < 2 {
		return
	}

	slices.SortStableFunc(sessions, func(a, b engine.SessionStatus) int {
		var c int
		switch opts.Field {
		case SortByPeak:
			c = cmp.Compare(a.Peak, b.Peak)
		case SortByVolume:
			c = cmp.Compare(a.Volume, b.Volume)
		case SortByIdentity:
			c = 0
		default:
			c = cmp.Compare(roleRank[a.Role], roleRank[b.Role])
		}
		if opts.Order == SortDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		if opts.Order == SortDesc && opts.Field == SortByIdentity {
			return strings.Compare(b.Identity, a.Identity)
		}
		return strings.Compare(a.Identity, b.Identity)
	})
}

// ParseSortField parses a sort field string.
func ParseSortField(s string) (SortField, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "role", "r", "":
		return SortByRole, nil
	case "identity", "name", "app", "i":
		return SortByIdentity, nil
	case "peak", "p":
		return SortByPeak, nil
	case "volume", "vol", "v":
		return SortByVolume, nil
	default:
		return "", fmt.Errorf("unknown sort field %q (want role, identity, peak or volume)", s)
	}
}

// ParseSortOrder parses a sort order string.
func ParseSortOrder(s string) (SortOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asc", "ascending", "a", "":
		return SortAsc, nil
	case "desc", "descending", "d":
		return SortDesc, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want asc or desc)", s)
	}
}
