package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// errorBody mirrors the payment platform's error envelope.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

func writeError(c *gin.Context, status int, msg string) {
	writeParamError(c, status, msg, "")
}

func writeParamError(c *gin.Context, status int, msg, param string) {
	typ := "invalid_request_error"
	if status >= http.StatusInternalServerError {
		typ = "api_error"
	}
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Type: typ, Message: msg, Param: param}})
}
