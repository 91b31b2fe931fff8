package transport

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/graphgate-io/graphgate/internal/config"
	"github.com/graphgate-io/graphgate/internal/observability"
)

// Server is the HTTP surface of the gateway: the GraphQL endpoint, the
// WebSocket subscription endpoint, health and metrics.
type Server struct {
	app *fiber.App
	cfg *config.Config
}

// NewServer builds the Fiber app and registers all routes.
func NewServer(cfg *config.Config, schemas *SchemaProvider, metrics *observability.Metrics) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "GraphGate",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          errorHandler,
	})

	app.Use(requestid.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	if metrics != nil {
		app.Get("/metrics", metrics.Handler())
	}

	if cfg.GraphQL.Enabled {
		handler := NewGraphQLHandler(schemas, &cfg.GraphQL, metrics)
		ws := NewWSHandler(schemas, &cfg.GraphQL)

		app.Post("/graphql", handler.HandleGraphQL)
		app.Get("/graphql", handler.HandleIntrospection)
		app.Get("/graphql/ws", ws.Upgrade)
	}

	return &Server{app: app, cfg: cfg}
}

// App exposes the underlying Fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen blocks serving HTTP until shutdown.
func (s *Server) Listen() error {
	log.Info().Str("address", s.cfg.Server.Address).Msg("HTTP server listening")
	return s.app.Listen(s.cfg.Server.Address)
}

// Shutdown drains connections and stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	if code >= 500 {
		log.Error().Err(err).Str("path", c.Path()).Msg("Server error")
	}

	return c.Status(code).JSON(fiber.Map{
		"error": message,
		"code":  code,
	})
}
