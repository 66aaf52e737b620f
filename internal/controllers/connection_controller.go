package controllers

import (
	"context"

	"github.com/studyhub/connector/internal/middlewares"
	"github.com/studyhub/connector/pkg/domain"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

type ConnectionReader interface {
	ListConnections(ctx context.Context, userID string) ([]domain.Connection, error)
	ListResources(ctx context.Context, userID string) ([]domain.DiscoveredResource, error)
}

type ConnectionController struct {
	reader ConnectionReader
}

type ConnectionControllerDependencies struct {
	ConnectionReader ConnectionReader
}

func NewConnectionController(deps ConnectionControllerDependencies) *ConnectionController {
	return &ConnectionController{
		reader: deps.ConnectionReader,
	}
}

type ListConnectionsResponse struct {
	Connections []domain.Connection `json:"connections"`
}

type ListResourcesResponse struct {
	Resources []domain.DiscoveredResource `json:"resources"`
}

func (c *ConnectionController) ListConnections(ctx fiber.Ctx) error {
	session, ok := middlewares.SessionFromCtx(ctx)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	connections, err := c.reader.ListConnections(ctx.RequestCtx(), session.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to list connections")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list connections")
	}

	return ctx.JSON(ListConnectionsResponse{Connections: connections})
}

func (c *ConnectionController) ListResources(ctx fiber.Ctx) error {
	session, ok := middlewares.SessionFromCtx(ctx)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "Authentication required")
	}

	resources, err := c.reader.ListResources(ctx.RequestCtx(), session.UserID)
	if err != nil {
		log.Error().Err(err).Str("user_id", session.UserID).Msg("Failed to list discovered resources")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to list discovered resources")
	}

	return ctx.JSON(ListResourcesResponse{Resources: resources})
}
