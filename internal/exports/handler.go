package exports

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/inquiro/backend/internal/middleware"
	"github.com/inquiro/backend/pkg/response"
	"github.com/inquiro/backend/pkg/storage"
)

// Handler serves response exports.
type Handler struct {
	svc *Service
}

// NewHandler creates an export handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// Export handles GET /responses/survey/:surveyId/export. Survey owner only.
// With S3 configured the CSV is uploaded and a pre-signed link is returned; otherwise the file is streamed.
func (h *Handler) Export(c *gin.Context) {
	surveyID, err := uuid.Parse(c.Param("surveyId"))
	if err != nil {
		response.BadRequest(c, "invalid survey id")
		return
	}
	ctx := c.Request.Context()
	f, err := h.svc.Render(ctx, surveyID, middleware.Identity(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if h.svc.Uploading() {
		link, err := h.svc.Publish(ctx, surveyID, f)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.OK(c, link)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.Filename))
	c.Data(http.StatusOK, storage.ContentTypeCSV, f.Data)
}
