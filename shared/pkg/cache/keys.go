package cache

// TenantVersionKey holds a counter bumped whenever a tenant's analytics
// data changes; bundle keys embed it, so a bump orphans old entries.
func TenantVersionKey(tenantID string) string {
	return "analytics:" + tenantID + ":ver"
}
