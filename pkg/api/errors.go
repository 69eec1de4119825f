package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/jobhub/pkg/gdrive"
	"github.com/codeready-toolchain/jobhub/pkg/jobs"
)

// errorResponse is the wire shape of every API error. Clients match on the
// type tag; msg is for humans.
type errorResponse struct {
	Type string `json:"type"`
	Msg  string `json:"msg"`
}

var (
	errChatIDMissing = errorResponse{Type: "ChatIdMissing", Msg: "Chat id missing"}
	errAPIKeyMissing = errorResponse{Type: "ApiKeyMissing", Msg: "Api key missing"}
	errAPIKeyInvalid = errorResponse{Type: "ApiKeyInvalid", Msg: "Api key invalid"}
	errQueryInvalid  = errorResponse{Type: "QueryInvalid", Msg: "Query invalid"}
	errNotFound      = errorResponse{Type: "NotFound", Msg: "Not found"}
	errInternal      = errorResponse{Type: "InternalServerError", Msg: "Internal server error. See server logs"}
)

// respondRegistryError maps registry-layer errors to HTTP error responses.
func respondRegistryError(c *gin.Context, err error) {
	var validErr *jobs.ValidationError
	if errors.As(err, &validErr) {
		slog.Warn("Rejected invalid request", "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, errQueryInvalid)
		return
	}
	if errors.Is(err, jobs.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, errNotFound)
		return
	}

	// Unexpected error
	slog.Error("Unexpected registry error", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errInternal)
}

// respondLinkError turns a share-link conversion failure into a 400 whose
// type tag names the conversion error kind.
func respondLinkError(c *gin.Context, err error) {
	var convErr *gdrive.ConvertError
	if errors.As(err, &convErr) {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
			Type: string(convErr.Kind),
			Msg:  convErr.Error(),
		})
		return
	}
	slog.Error("Unexpected link conversion error", "error", err)
	c.AbortWithStatusJSON(http.StatusInternalServerError, errInternal)
}
