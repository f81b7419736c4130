package proxy

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/infergate/infergate/proxy/config"
)

// Gateway is the authenticating reverse proxy in front of the inference
// service. It owns the gin engine, the upstream relay and the operational
// logger. Configuration is injected once at construction and never mutated;
// concurrent requests share no other state.
type Gateway struct {
	config    config.Config
	ginEngine *gin.Engine

	logger  *LogMonitor
	relay   *Relay
	metrics *Metrics
}

func New(cfg config.Config) *Gateway {
	gin.SetMode(gin.ReleaseMode)

	logger := NewLogMonitor()
	logger.SetLogLevel(ParseLogLevel(cfg.LogLevel))

	gw := &Gateway{
		config:    cfg,
		ginEngine: gin.New(),
		logger:    logger,
		relay:     NewRelay(cfg.Upstream, logger),
		metrics:   newMetrics(),
	}

	gw.setupGinEngine()
	return gw
}

func (gw *Gateway) setupGinEngine() {
	gw.ginEngine.Use(func(c *gin.Context) {
		if c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		requestID := uuid.NewString()

		clientIP := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()
		bodySize := c.Writer.Size()

		gw.metrics.observeRequest(path, statusCode)
		gw.logger.Infof("Request %s %s \"%s %s %s\" %d %d \"%s\" %v",
			requestID,
			clientIP,
			method,
			path,
			c.Request.Proto,
			statusCode,
			bodySize,
			c.Request.UserAgent(),
			duration,
		)
	})

	// respond with permissive OPTIONS for any endpoint
	gw.ginEngine.Use(func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if headers := c.Request.Header.Get("Access-Control-Request-Headers"); headers != "" {
				c.Header("Access-Control-Allow-Headers", headers)
			} else {
				c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, Accept, X-Requested-With")
			}
			c.Header("Access-Control-Max-Age", "86400")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	gw.ginEngine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	gw.ginEngine.GET("/metrics", gin.WrapH(gw.metrics.handler()))

	gw.ginEngine.POST("/v1/chat/completions", gw.authGate(), gw.chatCompletionsHandler)
	gw.ginEngine.POST("/v1/embeddings", gw.authGate(), gw.embeddingsHandler)
	gw.ginEngine.GET("/v1/models", gw.authGate(), gw.listModelsHandler)

	gin.DisableConsoleColor()
}

// ServeHTTP implements http.Handler
func (gw *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gw.ginEngine.ServeHTTP(w, r)
}

// authGate short-circuits unauthorized requests before any body is read or
// any upstream work starts. With no key configured every request passes.
// Otherwise the Authorization header must equal "Bearer <key>" exactly: no
// trimming, no case folding.
func (gw *Gateway) authGate() gin.HandlerFunc {
	key := gw.config.Auth.APIKey
	if key == "" {
		return func(c *gin.Context) { c.Next() }
	}

	expected := "Bearer " + key
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != expected {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			c.Abort()
			return
		}
		// The caller's token is validated here and goes no further; the
		// relay substitutes the service credential on the way out.
		c.Request.Header.Del("Authorization")
		c.Next()
	}
}
