package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/accesoit/flowops/internal/provision/model"
	"github.com/accesoit/flowops/internal/provision/service"
)

type Api struct {
	provisioner *service.Provisioner
}

func NewApi(provisioner *service.Provisioner, router *gin.Engine, webhookSecret string) (*Api, error) {
	api := &Api{provisioner: provisioner}
	api.setupRouters(router, webhookSecret)
	return api, nil
}

func (api *Api) setupRouters(router *gin.Engine, webhookSecret string) {
	instances := router.Group("/api/instances")
	{
		instances.GET("/me", api.listMyInstances)
		instances.GET("/:id", api.getInstance)
		instances.POST("/provision", api.provisionInstance)
		instances.POST("/:id/start", api.startInstance)
		instances.POST("/:id/stop", api.stopInstance)
		instances.PATCH("/:id/toggle", api.toggleInstance)
		instances.DELETE("/:id", api.deleteInstance)
		instances.GET("/:id/status", api.instanceStatus)
	}

	router.GET("/api/plans", api.listPlans)
	router.POST("/api/webhooks/payments", paymentWebhookHandler(api.provisioner, webhookSecret))
}

// renderError maps the provisioner's typed failures to HTTP statuses.
func renderError(c *gin.Context, err error) {
	var authErr *model.AuthorizationError
	var preErr *model.PreconditionError
	var provErr *model.ProvisioningError

	switch {
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"error": "not the instance owner"})
	case errors.As(err, &preErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &provErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		var remoteErr *model.RemoteOperationError
		if errors.As(err, &remoteErr) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
