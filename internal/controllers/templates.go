package controllers

import (
	"bytes"
	"embed"
	"html/template"

	"github.com/gofiber/fiber/v3"
)

//go:embed templates/*.html
var templatesFS embed.FS

var templates = template.Must(template.ParseFS(templatesFS, "templates/*.html"))

type successView struct {
	WorkspaceName     string
	DiscoveryDegraded bool
}

type failureView struct {
	Message string
}

func renderPage(c fiber.Ctx, status int, name string, view any) error {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, view); err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to render page")
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Status(status).Send(buf.Bytes())
}
