package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupBody struct {
	Name  string `json:"name" binding:"required" validate:"min=2,max=10"`
	Email string `json:"email" binding:"required,email"`
}

func bindRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/signup", func(c *gin.Context) {
		var body signupBody
		if !BindJSON(c, &body) {
			return
		}
		c.JSON(http.StatusOK, body)
	})
	return r
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
		wantTag    string
	}{
		{"valid", `{"name":"Ada","email":"ada@example.com"}`, http.StatusOK, "", ""},
		{"binding rule", `{"name":"Ada","email":"nope"}`, http.StatusBadRequest, "Email", "email"},
		{"validate rule", `{"name":"A","email":"ada@example.com"}`, http.StatusBadRequest, "name", "min"},
		{"malformed json", `{"name":`, http.StatusBadRequest, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/signup", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			bindRouter().ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantField == "" {
				return
			}

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "validation failed", resp.Error)
			require.Len(t, resp.Details, 1)
			assert.Equal(t, tt.wantField, resp.Details[0].Field)
			assert.Equal(t, tt.wantTag, resp.Details[0].Tag)
		})
	}
}

func TestValidateStruct(t *testing.T) {
	errs := ValidateStruct(&signupBody{Name: "a very long name indeed"})
	require.Len(t, errs, 1)
	assert.Equal(t, "name must be at most 10 characters", errs[0].Message)

	assert.Empty(t, ValidateStruct(signupBody{Name: "Ada"}))
	assert.Empty(t, ValidateStruct(42))
}
