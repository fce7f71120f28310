package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"

	"github.com/gin-gonic/gin"
)

// signatureHeaders names the header each gateway signs its webhooks in.
var signatureHeaders = map[string]string{
	"stripe":   "Stripe-Signature",
	"razorpay": "X-Razorpay-Signature",
}

const defaultSignatureHeader = "X-Webhook-Signature"

type PaymentHandler struct {
	checkoutService services.CheckoutService
}

func NewPaymentHandler(checkoutService services.CheckoutService) *PaymentHandler {
	return &PaymentHandler{
		checkoutService: checkoutService,
	}
}

// VerifySession reports the state of a checkout session the caller started
func (h *PaymentHandler) VerifySession(c *gin.Context) {
	status, err := h.checkoutService.VerifySession(c.Request.Context(), c.Param("session_id"), middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgDataRetrieved, status)
}

// Webhook receives gateway notifications on /webhooks/:provider. The raw body
// is handed over untouched since signatures are computed over it.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	provider := c.Param("provider")

	payload, err := c.GetRawData()
	if err != nil {
		bindError(c, err)
		return
	}

	header, ok := signatureHeaders[provider]
	if !ok {
		header = defaultSignatureHeader
	}

	outcome, err := h.checkoutService.HandleWebhook(c.Request.Context(), provider, payload, c.GetHeader(header))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgWebhookProcessed, outcome)
}
