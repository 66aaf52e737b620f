package server

import (
	"time"

	"github.com/studyhub/connector/internal/controllers"
	"github.com/studyhub/connector/internal/middlewares"
	"github.com/studyhub/connector/internal/version"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

const serviceName = "studyhub-connector"

type HTTPServerDependencies struct {
	OAuthController      *controllers.OAuthController
	ConnectionController *controllers.ConnectionController
	SessionVerifier      middlewares.SessionVerifier
	AllowOrigins         []string
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: serviceName,
	})

	router.Use(recoverer.New())

	corsConfig := cors.Config{}
	if len(deps.AllowOrigins) > 0 {
		corsConfig.AllowOrigins = deps.AllowOrigins
	}
	router.Use(cors.New(corsConfig))
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   serviceName,
			"version":   version.GetVersion(),
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	requireSession := middlewares.SessionMiddleware(deps.SessionVerifier)

	oauth := router.Group("/oauth")
	oauth.Get("/authorize", requireSession, deps.OAuthController.Authorize)
	oauth.Get("/callback", deps.OAuthController.Callback)

	connections := router.Group("/connections", requireSession)
	connections.Get("/", deps.ConnectionController.ListConnections)
	connections.Get("/resources", deps.ConnectionController.ListResources)

	return router
}
