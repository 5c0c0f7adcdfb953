package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/accesoit/flowops/internal/middleware"
)

type provisionRequest struct {
	PlanID *int64 `json:"planId"`
}

type deleteRequest struct {
	HardDelete bool `json:"hardDelete"`
}

func (api *Api) listMyInstances(c *gin.Context) {
	tenantID, ok := middleware.TenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	instances, err := api.provisioner.ListForTenant(c.Request.Context(), tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, instances)
}

func (api *Api) getInstance(c *gin.Context) {
	tenantID, ok := middleware.TenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	instanceID, ok := parseInstanceID(c)
	if !ok {
		return
	}

	// listing is already masked; find the requested row among the
	// tenant's own instances so ownership is enforced by construction
	instances, err := api.provisioner.ListForTenant(c.Request.Context(), tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	for _, inst := range instances {
		if inst.ID == instanceID {
			c.JSON(http.StatusOK, inst)
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
}

func (api *Api) provisionInstance(c *gin.Context) {
	tenantID, ok := middleware.TenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	inst, err := api.provisioner.Provision(c.Request.Context(), tenantID, req.PlanID)
	if err != nil {
		renderError(c, err)
		return
	}
	// the one place plaintext credentials are returned
	c.JSON(http.StatusOK, gin.H{"success": true, "instance": inst})
}

func (api *Api) startInstance(c *gin.Context) {
	api.mutate(c, func(instanceID, tenantID int64) (any, error) {
		return api.provisioner.Start(c.Request.Context(), instanceID, tenantID)
	})
}

func (api *Api) stopInstance(c *gin.Context) {
	api.mutate(c, func(instanceID, tenantID int64) (any, error) {
		return api.provisioner.Stop(c.Request.Context(), instanceID, tenantID)
	})
}

func (api *Api) toggleInstance(c *gin.Context) {
	api.mutate(c, func(instanceID, tenantID int64) (any, error) {
		return api.provisioner.Toggle(c.Request.Context(), instanceID, tenantID)
	})
}

func (api *Api) deleteInstance(c *gin.Context) {
	var req deleteRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	api.mutate(c, func(instanceID, tenantID int64) (any, error) {
		return api.provisioner.Delete(c.Request.Context(), instanceID, tenantID, req.HardDelete)
	})
}

func (api *Api) instanceStatus(c *gin.Context) {
	tenantID, ok := middleware.TenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	instanceID, ok := parseInstanceID(c)
	if !ok {
		return
	}

	// ownership check before exposing remote state
	instances, err := api.provisioner.ListForTenant(c.Request.Context(), tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	owned := false
	for _, inst := range instances {
		if inst.ID == instanceID {
			owned = true
			break
		}
	}
	if !owned {
		c.JSON(http.StatusNotFound, gin.H{"error": "instance not found"})
		return
	}

	report, err := api.provisioner.GetStatus(c.Request.Context(), instanceID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (api *Api) listPlans(c *gin.Context) {
	plans, err := api.provisioner.ListPlans(c.Request.Context())
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

func (api *Api) mutate(c *gin.Context, fn func(instanceID, tenantID int64) (any, error)) {
	tenantID, ok := middleware.TenantFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	instanceID, ok := parseInstanceID(c)
	if !ok {
		return
	}

	result, err := fn(instanceID, tenantID)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseInstanceID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid instance id"})
		return 0, false
	}
	return id, true
}
