// Package keys builds cache keys for posyandu API reads and the sets of
// keys a mutation must invalidate.
//
// Keys are deterministic: two requests with the same role and filters
// always produce the same key, and filters that differ produce different
// keys. Requests carrying a free-text search are never cached.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Role is the kind of user a session belongs to.
type Role string

const (
	RoleKader  Role = "kader"
	RoleParent Role = "parent" // orang tua
)

// Roles lists every known role.
var Roles = []Role{RoleKader, RoleParent}

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleKader:
		return RoleKader, nil
	case RoleParent, "orang_tua", "orangtua":
		return RoleParent, nil
	}
	return "", fmt.Errorf("keys: unknown role %q", s)
}

// Collections group keys for bulk invalidation.
const (
	CollectionChildren  = "children"
	CollectionDashboard = "dashboard"
	CollectionPriority  = "priority"
)

// AllCollections lists every collection a child mutation touches.
var AllCollections = []string{CollectionChildren, CollectionDashboard, CollectionPriority}

const all = "all"

// ChildFilter holds the query parameters of a children list request.
type ChildFilter struct {
	Status string // Nutritional status; empty or "all" means any
	Active *bool  // nil means any
	Search string // Free-text name search
}

// Bool returns a pointer to b, for ChildFilter.Active.
func Bool(b bool) *bool { return &b }

// NormalizedStatus lower-cases and trims Status, mapping empty to "all".
func (f ChildFilter) NormalizedStatus() string {
	s := strings.ToLower(strings.TrimSpace(f.Status))
	if s == "" {
		return all
	}
	return strings.Join(strings.Fields(s), "_")
}

// ActiveParam renders Active as "1", "0" or "all".
func (f ChildFilter) ActiveParam() string {
	if f.Active == nil {
		return all
	}
	if *f.Active {
		return "1"
	}
	return "0"
}

// HasSearch reports whether the filter carries a non-blank search term.
func (f ChildFilter) HasSearch() bool {
	return strings.TrimSpace(f.Search) != ""
}

// ChildrenList returns the key for a children list request. cacheable is
// false when the filter carries a search term; the key is then empty.
func ChildrenList(role Role, f ChildFilter) (key string, cacheable bool) {
	if f.HasSearch() {
		return "", false
	}
	return fmt.Sprintf("%s_children_status_%s_active_%s", role, f.NormalizedStatus(), f.ActiveParam()), true
}

func DashboardSummary(role Role) string {
	return string(role) + "_dashboard_summary"
}

func PriorityList(role Role) string {
	return string(role) + "_priority_children"
}

func ChildDetail(role Role, id int64) string {
	return string(role) + "_child_" + strconv.FormatInt(id, 10)
}

// Invalidation is the set of cache entries a mutation makes stale.
type Invalidation struct {
	Keys        []string
	Collections []string
}

// ChildMutation returns what a create, update or delete of a child makes
// stale: every list, summary and priority view plus the child's detail
// entry for every role. childID <= 0 (a create) adds no detail keys.
func ChildMutation(childID int64) Invalidation {
	inv := Invalidation{Collections: append([]string(nil), AllCollections...)}
	if childID > 0 {
		for _, r := range Roles {
			inv.Keys = append(inv.Keys, ChildDetail(r, childID))
		}
	}
	return inv
}
