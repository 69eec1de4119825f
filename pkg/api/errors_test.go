package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/jobhub/pkg/gdrive"
	"github.com/codeready-toolchain/jobhub/pkg/jobs"
)

func TestRespondRegistryError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "validation error becomes query invalid",
			err:      jobs.NewValidationError("project_name", "must not be empty"),
			wantCode: http.StatusBadRequest,
			wantBody: `{"type":"QueryInvalid","msg":"Query invalid"}`,
		},
		{
			name:     "not found",
			err:      jobs.ErrNotFound,
			wantCode: http.StatusNotFound,
			wantBody: `{"type":"NotFound","msg":"Not found"}`,
		},
		{
			name:     "unexpected error stays opaque",
			err:      errors.New("disk exploded"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"type":"InternalServerError","msg":"Internal server error. See server logs"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			respondRegistryError(c, tt.err)

			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestRespondLinkError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	_, err := gdrive.ConvertShareLink("http://drive.google.com/file/d/ABC/view")
	respondLinkError(c, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"type":"InvalidScheme","msg":"invalid scheme: http"}`, rec.Body.String())
}
