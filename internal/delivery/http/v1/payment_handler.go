package v1

import (
	"errors"
	"io"
	"net/http"

	"softhire-backend/internal/delivery/http/response"
	"softhire-backend/internal/domain"
	"softhire-backend/pkg/apperror"

	"github.com/gin-gonic/gin"
)

// Stripe caps event payloads well below this.
const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	paymentUC domain.PaymentUsecase
}

func NewPaymentHandler(public *gin.RouterGroup, protected *gin.RouterGroup, paymentUC domain.PaymentUsecase) {
	handler := &PaymentHandler{paymentUC: paymentUC}

	payments := public.Group("/payments")
	{
		payments.GET("/plans", handler.Plans)
		// Authenticated by the provider signature, not a bearer token.
		payments.POST("/webhook", handler.Webhook)
	}

	protected.POST("/sponsorship/:id/checkout", handler.Checkout)
}

type CheckoutRequest struct {
	PlanID string `json:"planId"`
}

// Plans godoc
// @Summary      List plans
// @Tags         payments
// @Produce      json
// @Success      200  {object}  response.Response
// @Router       /payments/plans [get]
func (h *PaymentHandler) Plans(c *gin.Context) {
	response.Success(c, http.StatusOK, "Plans retrieved", h.paymentUC.Plans())
}

// Checkout godoc
// @Summary      Start checkout for a submitted application
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        id    path      string           true   "Application ID"
// @Param        body  body      CheckoutRequest  false  "Plan selection (defaults to standard)"
// @Success      200   {object}  response.Response
// @Failure      409   {object}  response.Response  "Not submitted or already paid"
// @Failure      503   {object}  response.Response  "Payment provider unavailable, retry"
// @Router       /sponsorship/{id}/checkout [post]
// @Security     BearerAuth
func (h *PaymentHandler) Checkout(c *gin.Context) {
	var req CheckoutRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.Error(apperror.BadRequest("Invalid request body."))
			return
		}
	}

	session, err := h.paymentUC.InitiateCheckout(c.Request.Context(),
		c.Param("id"),
		c.GetString(string(domain.KeyUserID)),
		c.GetString(string(domain.KeyUserEmail)),
		req.PlanID)
	if err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Checkout session created", session)
}

// Webhook godoc
// @Summary      Payment provider webhook
// @Description  Verifies the Stripe-Signature header. Responds 200 for every verified event, including ones that match no application.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      500  {object}  response.Response
// @Router       /payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.Error(apperror.BadRequest("Could not read webhook body."))
		return
	}

	if err := h.paymentUC.HandleWebhook(c.Request.Context(), payload, c.GetHeader("Stripe-Signature")); err != nil {
		c.Error(err)
		return
	}
	response.Success(c, http.StatusOK, "Received", gin.H{"received": true})
}
