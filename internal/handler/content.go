package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/memberhub/internal/content"
)

// ContentHandler generates event and marketing copy.
type ContentHandler struct {
	Generator content.Generator
}

func NewContentHandler(g content.Generator) *ContentHandler {
	return &ContentHandler{Generator: g}
}

// Generate handles POST /v1/content/generate {kind, topic, tone}.  The
// upstream call has its own timeout, so the request context is used as is.
func (h *ContentHandler) Generate(c echo.Context) error {
	var req content.Request
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if err := req.Validate(); err != nil {
		return writeError(c, err)
	}
	res, err := h.Generator.Generate(c.Request().Context(), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}
