package server

import (
	"net/http"
	"strconv"

	"trading-relay/src/helpers"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------

// statusFor maps an error kind to the HTTP status returned to callers.
func statusFor(kind helpers.Kind) int {
	switch kind {
	case helpers.KindValidation, helpers.KindNotAuthorized, helpers.KindDecode:
		return http.StatusBadRequest
	case helpers.KindPositionNotFound, helpers.KindAccountNotFound:
		return http.StatusNotFound
	case helpers.KindTimeout:
		return http.StatusGatewayTimeout
	case helpers.KindLinkDown, helpers.KindNotConnected, helpers.KindTransport:
		return http.StatusServiceUnavailable
	case helpers.KindUpstream, helpers.KindRiskRejected, helpers.KindAuthorization:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {success:false, message, kind} plus any extra fields.
func respondError(c *gin.Context, err error, extra gin.H) {
	kind := helpers.KindOf(err)
	body := gin.H{"success": false, "message": err.Error(), "kind": kind}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(statusFor(kind), body)
}

// -----------------------------------------------------------------------------

// bindJSON decodes the body into dst, answering 400 on failure.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, helpers.NewValidationError("invalid request body: %v", err), nil)
		return false
	}
	return true
}

// queryInt reads an optional integer query parameter.
func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		respondError(c, helpers.NewValidationError("%s must be an integer", key), nil)
		return 0, false
	}
	return v, true
}
