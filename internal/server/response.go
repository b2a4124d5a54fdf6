package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ansiblecluster/core/internal/apierr"
)

type errorEnvelope struct {
	Error string `json:"error"`
}

func respondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps any error through apierr's taxonomy (falling back to 500
// for anything that isn't already an *apierr.Error) and writes it.
func respondErr(c *gin.Context, err error) {
	apiErr := apierr.As(err)
	c.JSON(apiErr.Status, errorEnvelope{Error: apiErr.Error()})
}
