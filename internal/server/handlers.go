package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/arwahdevops/shipmigrate/internal/engine"
	"github.com/arwahdevops/shipmigrate/internal/migration"
	"github.com/arwahdevops/shipmigrate/internal/runlock"
)

type handlers struct {
	ops    Operations
	logger *zap.Logger
}

// errorStatus: 409 untuk lock yang dipegang run lain, selain itu 500.
func errorStatus(err error) int {
	if errors.Is(err, runlock.ErrLocked) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (h *handlers) fail(c *gin.Context, err error, extra gin.H) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(errorStatus(err), body)
}

// bindMigrateRequest: body kosong berarti source default (backup-tables).
func bindMigrateRequest(c *gin.Context) (engine.MigrateRequest, bool) {
	var req engine.MigrateRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return req, false
	}
	return req, true
}

func (h *handlers) migrate(c *gin.Context) {
	req, ok := bindMigrateRequest(c)
	if !ok {
		return
	}
	log, err := h.ops.Migrate(c.Request.Context(), req)
	if err != nil {
		var lines []string
		var me *migration.MigrationError
		if errors.As(err, &me) && me.Log != nil {
			lines = me.Log.Lines
		} else if log != nil {
			lines = log.Lines
		}
		h.fail(c, err, gin.H{"log": lines})
		return
	}
	c.JSON(http.StatusOK, gin.H{"log": log.Lines})
}

func (h *handlers) integrity(c *gin.Context) {
	rep, err := h.ops.VerifyIntegrity(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) validation(c *gin.Context) {
	rep, err := h.ops.ValidateData(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) cleanup(c *gin.Context) {
	rep, err := h.ops.CleanupData(c.Request.Context())
	if err != nil {
		h.fail(c, err, gin.H{"report": rep})
		return
	}
	c.JSON(http.StatusOK, rep)
}

func (h *handlers) qualityReport(c *gin.Context) {
	rep, files, err := h.ops.GenerateQualityReport(c.Request.Context())
	if err != nil {
		h.fail(c, err, gin.H{"report": rep, "files": files})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": rep, "files": files})
}

func (h *handlers) updateCredentials(c *gin.Context) {
	res, err := h.ops.UpdateUserCredentials(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) defaultUsers(c *gin.Context) {
	res, err := h.ops.CreateDefaultUsers(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) permissions(c *gin.Context) {
	res, err := h.ops.SetupPermissions(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) validateCredentials(c *gin.Context) {
	res, err := h.ops.ValidateUserCredentials(c.Request.Context())
	if err != nil {
		h.fail(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) completeCredentials(c *gin.Context) {
	req, ok := bindMigrateRequest(c)
	if !ok {
		return
	}
	res := h.ops.CompleteCredentialUpdate(c.Request.Context(), req)
	if !res.Success {
		h.logger.Warn("Complete credential update failed", zap.String("error", res.Error))
		c.JSON(http.StatusInternalServerError, res)
		return
	}
	c.JSON(http.StatusOK, res)
}
