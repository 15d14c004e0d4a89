package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AppOptions controls how the admin application behaves.
type AppOptions struct {
	Logger     *logrus.Logger
	ListenPort int
	Version    string
	// Now 替换时间来源，便于测试 uptime。
	Now func() time.Time
}

const contextKeyRequestID = "_mangafetch_request_id"

// NewApp builds a Fiber application with request-ID middleware, the status
// endpoint and a JSON 404 for anything outside the admin prefix.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.ListenPort <= 0 || opts.ListenPort > 65535 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	started := opts.Now()

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware(opts.Logger))

	app.All("/*", func(c fiber.Ctx) error {
		if isAdminPath(string(c.Request().URI().Path())) {
			return c.Next()
		}
		return renderNotFound(c, opts.Logger)
	})

	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":           "mangafetch",
			"version":        opts.Version,
			"listen_port":    opts.ListenPort,
			"uptime_seconds": int64(opts.Now().Sub(started) / time.Second),
		})
	})

	return app, nil
}

// requestContextMiddleware 为每个请求生成 ID 并写入响应头与访问日志。
func requestContextMiddleware(logger *logrus.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)

		err := c.Next()

		logger.WithFields(logrus.Fields{
			"action":     "admin_request",
			"request_id": reqID,
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
		}).Debug("admin request handled")
		return err
	}
}

func renderNotFound(c fiber.Ctx, logger *logrus.Logger) error {
	logger.WithFields(logrus.Fields{
		"action": "admin_lookup",
		"path":   c.Path(),
	}).Debug("path not served")

	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": "not_found",
	})
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}

func isAdminPath(path string) bool {
	return strings.HasPrefix(path, "/-/")
}
