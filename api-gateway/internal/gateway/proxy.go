package gateway

import (
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/eaglebank/usersync/shared/middleware"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Headers that describe a single connection and must not be forwarded.
var hopHeaders = map[string]struct{}{
	"Connection":          {},
	"Keep-Alive":          {},
	"Proxy-Authenticate":  {},
	"Proxy-Authorization": {},
	"Te":                  {},
	"Trailer":             {},
	"Transfer-Encoding":   {},
	"Upgrade":             {},
	"Content-Length":      {},
}

// Upstream forwards requests to one backing service.
type Upstream struct {
	name    string
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

func NewUpstream(name, baseURL string, timeout time.Duration, logger zerolog.Logger) *Upstream {
	return &Upstream{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("upstream", name).Logger(),
	}
}

// Proxy relays the request path, query, headers and body unchanged and copies
// the upstream response back. The correlation id is always forwarded.
func (u *Upstream) Proxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		targetURL := u.baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			targetURL += "?" + c.Request.URL.RawQuery
		}

		body := c.Request.Body
		if c.Request.ContentLength == 0 {
			body = http.NoBody
		}
		req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create request"})
			return
		}
		req.ContentLength = c.Request.ContentLength
		copyHeaders(req.Header, c.Request.Header)
		if id := middleware.CorrelationIDFrom(c.Request.Context()); id != "" {
			req.Header.Set(middleware.CorrelationIDHeader, id)
		}
		req.Header.Set("X-Forwarded-For", c.ClientIP())

		resp, err := u.client.Do(req)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				u.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("upstream timed out")
				c.JSON(http.StatusGatewayTimeout, gin.H{"message": "Service timed out"})
				return
			}
			u.logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("error proxying request")
			c.JSON(http.StatusBadGateway, gin.H{"message": "Service unavailable"})
			return
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"message": "Failed to read response"})
			return
		}

		copyHeaders(c.Writer.Header(), resp.Header)
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
	}
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if _, hop := hopHeaders[key]; hop {
			continue
		}
		dst[key] = append([]string(nil), values...)
	}
}
