package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// maxSectionBody bounds a section payload. Documents are references, so
// real payloads stay well below this.
const maxSectionBody = 1 << 20

type SponsorshipHandler struct {
	sponsorshipUC domain.SponsorshipUsecase
}

func NewSponsorshipHandler(protected *gin.RouterGroup, admin *gin.RouterGroup, sponsorshipUC domain.SponsorshipUsecase) {
	handler := &SponsorshipHandler{sponsorshipUC: sponsorshipUC}

	sponsorship := protected.Group("/sponsorship")
	{
		sponsorship.POST("", handler.Create)
		sponsorship.GET("/:id", handler.Get)
		sponsorship.GET("/:id/:section", handler.GetSection)
		sponsorship.PATCH("/:id/:section", handler.UpdateSection)
		sponsorship.POST("/:id/submit", handler.Submit)
	}

	admin.GET("/sponsorship", handler.List)
}

type CreateApplicationResponse struct {
	Application *domain.SponsorshipApplication `json:"application"`
	Status      domain.ApplicationStatus       `json:"status"`
	Created     bool                           `json:"created"`
}

type SubmitResponse struct {
	Application *domain.SponsorshipApplication `json:"application"`
	Status      domain.ApplicationStatus       `json:"status"`
}

// Create godoc
// @Summary      Start a sponsorship application
// @Description  Creates the caller's application, or returns the existing one (one per account)
// @Tags         sponsorship
// @Produce      json
// @Success      201  {object}  response.Response
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Router       /sponsorship [post]
// @Security     BearerAuth
func (h *SponsorshipHandler) Create(c *gin.Context) {
	userID := c.GetString(string(domain.KeyUserID))

	app, created, err := h.sponsorshipUC.CreateApplication(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	body := CreateApplicationResponse{Application: app, Status: app.Status(), Created: created}
	if created {
		response.Success(c, http.StatusCreated, "Application created", body)
		return
	}
	response.Success(c, http.StatusOK, "Application already exists", body)
}

// Get godoc
// @Summary      Get a sponsorship application
// @Description  Returns the application with every completed section and the list of missing sections
// @Tags         sponsorship
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response
// @Failure      403  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /sponsorship/{id} [get]
// @Security     BearerAuth
func (h *SponsorshipHandler) Get(c *gin.Context) {
	detail, err := h.sponsorshipUC.GetApplication(c.Request.Context(), c.Param("id"), c.GetString(string(domain.KeyUserID)))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Application retrieved", detail)
}

// GetSection godoc
// @Summary      Get one section
// @Tags         sponsorship
// @Produce      json
// @Param        id       path      string  true  "Application ID"
// @Param        section  path      string  true  "Section slug, e.g. about-your-company"
// @Success      200      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /sponsorship/{id}/{section} [get]
// @Security     BearerAuth
func (h *SponsorshipHandler) GetSection(c *gin.Context) {
	kind, ok := domain.ParseSectionKind(c.Param("section"))
	if !ok {
		c.Error(apperror.NotFound("Unknown section."))
		return
	}

	section, err := h.sponsorshipUC.GetSection(c.Request.Context(), c.Param("id"), c.GetString(string(domain.KeyUserID)), kind)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Section retrieved", section)
}

// UpdateSection godoc
// @Summary      Save a section
// @Description  Applies the body as a JSON merge patch over the saved section, validates the result and stores it. Switching an answer off drops the dependent answers the body leaves out
// @Tags         sponsorship
// @Accept       json
// @Produce      json
// @Param        id       path      string  true  "Application ID"
// @Param        section  path      string  true  "Section slug"
// @Param        body     body      object  true  "Section fields"
// @Success      200      {object}  response.Response
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /sponsorship/{id}/{section} [patch]
// @Security     BearerAuth
func (h *SponsorshipHandler) UpdateSection(c *gin.Context) {
	kind, ok := domain.ParseSectionKind(c.Param("section"))
	if !ok {
		c.Error(apperror.NotFound("Unknown section."))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSectionBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.Error(apperror.New(http.StatusRequestEntityTooLarge, "Section payload is too large.", err))
			return
		}
		c.Error(apperror.BadRequest("Could not read request body."))
		return
	}
	if !json.Valid(body) {
		c.Error(apperror.BadRequest("Request body must be valid JSON."))
		return
	}

	section, err := h.sponsorshipUC.UpdateSection(c.Request.Context(), c.Param("id"), c.GetString(string(domain.KeyUserID)), kind, body)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Section saved", section)
}

// Submit godoc
// @Summary      Submit the application
// @Description  Locks the application once every section is complete. Sends confirmation emails.
// @Tags         sponsorship
// @Produce      json
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response  "error.missingSections lists incomplete sections"
// @Failure      409  {object}  response.Response
// @Router       /sponsorship/{id}/submit [post]
// @Security     BearerAuth
func (h *SponsorshipHandler) Submit(c *gin.Context) {
	app, err := h.sponsorshipUC.Submit(c.Request.Context(), c.Param("id"), c.GetString(string(domain.KeyUserID)))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Application submitted", SubmitResponse{Application: app, Status: app.Status()})
}

// List godoc
// @Summary      List sponsorship applications (admin)
// @Tags         admin
// @Produce      json
// @Param        status  query     string  false  "draft, submitted or paid"
// @Param        limit   query     int     false  "Page size (max 100)"
// @Param        offset  query     int     false  "Offset"
// @Success      200     {object}  response.Response
// @Failure      403     {object}  response.Response
// @Router       /admin/sponsorship [get]
// @Security     BearerAuth
func (h *SponsorshipHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	apps, err := h.sponsorshipUC.ListApplications(c.Request.Context(), domain.ApplicationFilter{
		Status: domain.ApplicationStatus(c.Query("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Applications retrieved", apps)
}
