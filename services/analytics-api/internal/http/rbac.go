package httpx

import (
	"net/http"
	"strings"

	"storefront-analytics/services/analytics-api/internal/http/handlers"
)

type Permission string

const (
	PermRead    Permission = "analytics:read"
	PermExport  Permission = "analytics:export"
	PermRefresh Permission = "analytics:refresh"
)

const (
	HeaderTenant = "X-Tenant-ID"
	HeaderRoles  = "X-User-Roles"
)

var grants = map[string][]Permission{
	"owner":   {PermRead, PermExport, PermRefresh},
	"admin":   {PermRead, PermExport, PermRefresh},
	"analyst": {PermRead, PermExport},
	"support": {PermRead},
}

// ParseRoles splits a comma separated role header, lowercased, empties dropped.
func ParseRoles(h string) []string {
	var out []string
	for _, p := range strings.Split(h, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Can reports whether any of roles grants perm. Unknown roles grant nothing.
func Can(roles []string, perm Permission) bool {
	for _, role := range roles {
		for _, p := range grants[role] {
			if p == perm {
				return true
			}
		}
	}
	return false
}

func RequireTenant(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(HeaderTenant))
		if tenantID == "" {
			handlers.WriteError(w, http.StatusBadRequest, "missing "+HeaderTenant)
			return
		}
		next.ServeHTTP(w, r.WithContext(handlers.WithTenant(r.Context(), tenantID)))
	})
}

func Require(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Can(ParseRoles(r.Header.Get(HeaderRoles)), perm) {
				handlers.WriteError(w, http.StatusForbidden, "missing permission "+string(perm))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
