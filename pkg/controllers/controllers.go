/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package controllers maps the dispatcher's HTTP surface onto the dispatch
// core. Handlers stay thin: bind, call, translate typed errors.
package controllers

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"knative.dev/pkg/logging"

	"github.com/kau-subtrack/subtrack-backend/pkg/dispatch"
	apierrors "github.com/kau-subtrack/subtrack-backend/pkg/errors"
	"github.com/kau-subtrack/subtrack-backend/pkg/repository"
)

const dbCheckTimeout = 5 * time.Second

type Controller struct {
	core      *dispatch.Core
	repo      *repository.Repository
	db        *sql.DB
	jwtSecret []byte
}

func New(core *dispatch.Core, repo *repository.Repository, db *sql.DB, jwtSecret []byte) *Controller {
	return &Controller{core: core, repo: repo, db: db, jwtSecret: jwtSecret}
}

// Router builds the dispatcher's route tree.
func (ct *Controller) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	auth := Authenticate(ct.jwtSecret)

	pickup := router.Group("/api/pickup")
	{
		pickup.POST("/webhook", ct.handleWebhook)
		pickup.GET("/next", auth, ct.handleNext(dispatch.PhasePickup))
		pickup.POST("/complete", auth, ct.handleComplete(dispatch.PhasePickup))
		pickup.POST("/hub-arrived", auth, ct.handleHubArrived(dispatch.PhasePickup))
		pickup.GET("/all-completed", ct.handleAllCompleted)
		pickup.GET("/status", ct.handleStatus)
	}
	delivery := router.Group("/api/delivery")
	{
		delivery.POST("/import", ct.handleImport)
		delivery.POST("/assign", ct.handleAssign)
		delivery.GET("/next", auth, ct.handleNext(dispatch.PhaseDelivery))
		delivery.POST("/complete", auth, ct.handleComplete(dispatch.PhaseDelivery))
		delivery.POST("/hub-arrived", auth, ct.handleHubArrived(dispatch.PhaseDelivery))
		delivery.GET("/status", ct.handleStatus)
	}
	router.GET("/api/debug/db-check", ct.handleDBCheck)
	router.GET("/api/debug/parcel-stats", ct.handleParcelStats)
	return router
}

// abortWithError translates a typed error into its HTTP response, merging
// structured details into the body.
func abortWithError(c *gin.Context, err error) {
	status := apierrors.HTTPStatus(err)
	body := gin.H{
		"error": err.Error(),
		"code":  apierrors.Label(err),
	}
	var reqErr *apierrors.RequestError
	if errors.As(err, &reqErr) {
		for k, v := range reqErr.Details {
			body[k] = v
		}
	}
	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Errorw("request failed", "error", err)
		body["error"] = "Internal server error"
	}
	c.AbortWithStatusJSON(status, body)
}

func (ct *Controller) handleWebhook(c *gin.Context) {
	var req struct {
		ParcelID int64 `json:"parcelId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.ParcelID == 0 {
		abortWithError(c, apierrors.Validation("parcelId is required"))
		return
	}
	resp, err := ct.core.IngestPickup(c.Request.Context(), req.ParcelID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ct *Controller) handleNext(phase dispatch.Phase) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := ct.core.NextDestination(c.Request.Context(), phase, driverID(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (ct *Controller) handleComplete(phase dispatch.Phase) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ParcelID   int64 `json:"parcelId"`
			DeliveryID int64 `json:"deliveryId"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			abortWithError(c, apierrors.Validation("malformed request body"))
			return
		}
		parcelID := req.ParcelID
		if phase == dispatch.PhaseDelivery && req.DeliveryID != 0 {
			parcelID = req.DeliveryID
		}
		if parcelID == 0 {
			abortWithError(c, apierrors.Validation("parcelId is required"))
			return
		}
		resp, err := ct.core.Complete(c.Request.Context(), phase, driverID(c), parcelID)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (ct *Controller) handleHubArrived(phase dispatch.Phase) gin.HandlerFunc {
	return func(c *gin.Context) {
		resp, err := ct.core.HubArrived(c.Request.Context(), phase, driverID(c))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (ct *Controller) handleAllCompleted(c *gin.Context) {
	resp, err := ct.core.AllPickupsCompleted(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ct *Controller) handleImport(c *gin.Context) {
	resp, err := ct.core.ImportDeliveries(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ct *Controller) handleAssign(c *gin.Context) {
	resp, err := ct.core.AssignDeliveries(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (ct *Controller) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (ct *Controller) handleDBCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), dbCheckTimeout)
	defer cancel()
	if err := ct.db.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"database": "unreachable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"database": "ok"})
}

func (ct *Controller) handleParcelStats(c *gin.Context) {
	counts, err := ct.repo.DailyStatusCounts(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, counts)
}
