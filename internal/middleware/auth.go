package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
)

const tenantIDKey = "tenantID"

// Authentication trusts the session gateway in front of this service: it
// reads the authenticated account id from X-Tenant-ID. Handlers that
// require an identity reject requests where none was injected.
func Authentication(c *gin.Context) {
	if raw := c.GetHeader("X-Tenant-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.Set(tenantIDKey, id)
		}
	}
	c.Next()
}

// TenantFrom returns the authenticated tenant id, if any.
func TenantFrom(c *gin.Context) (int64, bool) {
	v, ok := c.Get(tenantIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}
