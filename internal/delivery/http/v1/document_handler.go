package v1

import (
	"net/http"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentUC domain.DocumentUsecase
}

func NewDocumentHandler(protected *gin.RouterGroup, documentUC domain.DocumentUsecase) {
	handler := &DocumentHandler{documentUC: documentUC}
	protected.POST("/sponsorship/:id/documents/upload-url", handler.RequestUploadURL)
}

// RequestUploadURL godoc
// @Summary      Get a presigned upload URL for a supporting document
// @Description  The returned file reference is placed in the supporting-documents section after the upload completes
// @Tags         documents
// @Accept       json
// @Produce      json
// @Param        id    path      string                true  "Application ID"
// @Param        body  body      domain.UploadRequest  true  "Slot and file details"
// @Success      200   {object}  response.Response
// @Failure      400   {object}  response.Response
// @Failure      409   {object}  response.Response
// @Failure      503   {object}  response.Response
// @Router       /sponsorship/{id}/documents/upload-url [post]
// @Security     BearerAuth
func (h *DocumentHandler) RequestUploadURL(c *gin.Context) {
	var req domain.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("Invalid request body."))
		return
	}

	ticket, err := h.documentUC.RequestUploadURL(c.Request.Context(), c.Param("id"), c.GetString(string(domain.KeyUserID)), req)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Upload URL created", ticket)
}
