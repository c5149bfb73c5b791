package v1

import (
	"net/http"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountUC domain.AccountUsecase
}

func NewAccountHandler(protected *gin.RouterGroup, admin *gin.RouterGroup, accountUC domain.AccountUsecase) {
	handler := &AccountHandler{accountUC: accountUC}

	protected.GET("/auth/me", handler.Me)
	admin.PUT("/users/:id/role", handler.AssignRole)
}

type AssignRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// Me godoc
// @Summary      Current account
// @Tags         auth
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      401  {object}  response.Response
// @Router       /auth/me [get]
// @Security     BearerAuth
func (h *AccountHandler) Me(c *gin.Context) {
	user, err := h.accountUC.GetCurrentUser(c.Request.Context(), c.GetString(string(domain.KeyUserID)))
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "User retrieved", user)
}

// AssignRole godoc
// @Summary      Change an account's role (admin)
// @Tags         admin
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "User ID"
// @Param        body  body      AssignRoleRequest  true  "Role"
// @Success      200   {object}  response.Response
// @Failure      400   {object}  response.Response
// @Failure      403   {object}  response.Response
// @Router       /admin/users/{id}/role [put]
// @Security     BearerAuth
func (h *AccountHandler) AssignRole(c *gin.Context) {
	var req AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperror.BadRequest("role is required."))
		return
	}
	if err := h.accountUC.AssignRole(c.Request.Context(), c.Param("id"), req.Role); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Role updated", nil)
}
