package proxy

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/infergate/infergate/proxy/normalize"
)

// translateError maps any failure from the normalizer or the relay onto
// exactly one sanitized caller-facing response. Full detail goes to the
// operational log keyed by the operation name; upstream payload bodies never
// reach the caller.
func (gw *Gateway) translateError(c *gin.Context, operation string, err error) {
	var reqErr *normalize.RequestError
	if errors.As(err, &reqErr) {
		gw.logger.Infof("%s rejected: %s", operation, reqErr.Message)
		c.JSON(reqErr.Status, gin.H{"error": reqErr.Message})
		return
	}

	var upErr *UpstreamError
	if errors.As(err, &upErr) {
		switch upErr.Kind {
		case UpstreamHTTPError:
			gw.logger.Errorf("%s upstream returned %d: %s", operation, upErr.Status, truncateForLog(string(upErr.Body), 2000))
			if upErr.Status < http.StatusInternalServerError {
				c.JSON(upErr.Status, gin.H{"error": "Client error from upstream service."})
			} else {
				c.JSON(http.StatusBadGateway, gin.H{"error": "Bad Gateway. Upstream service error."})
			}
			return
		case UpstreamNoResponse:
			gw.logger.Errorf("%s got no upstream response: %v", operation, upErr.Err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "Bad Gateway. No response from upstream service."})
			return
		}
	}

	gw.logger.Errorf("%s failed unexpectedly: %v", operation, err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": fmt.Sprintf("Internal server error during %s proxy.", operation),
	})
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
