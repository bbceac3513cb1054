package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xraph/paysim/apilog"
)

func (h *Handler) flushData(c *gin.Context) {
	if err := h.engine.Flush(c.Request.Context()); err != nil {
		h.logger.ErrorContext(c.Request.Context(), "flush failed", "error", err)
		writeError(c, http.StatusInternalServerError, "An error occurred with our API.")
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) listAPILogs(c *gin.Context) {
	f := apilog.Filter{
		Method:     c.Query("method"),
		ObjectType: c.Query("object_type"),
		ObjectID:   c.Query("object_id"),
	}

	var ok bool
	if f.Limit, ok = queryInt(c, "limit", apilog.DefaultLimit); !ok {
		writeParamError(c, http.StatusBadRequest, "Invalid integer: "+c.Query("limit"), "limit")
		return
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		writeParamError(c, http.StatusBadRequest, "Invalid integer: "+c.Query("offset"), "offset")
		return
	}
	if v := c.Query("status_code"); v != "" {
		code, err := strconv.Atoi(v)
		if err != nil {
			writeParamError(c, http.StatusBadRequest, "Invalid integer: "+v, "status_code")
			return
		}
		f.StatusCode = code
	}

	c.JSON(http.StatusOK, h.apiLog.List(f))
}

func (h *Handler) clearAPILogs(c *gin.Context) {
	h.apiLog.Clear()
	c.Status(http.StatusOK)
}
