package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
)

type ParticipationHandler struct {
	participationService services.ParticipationService
	reconciler           services.Reconciler
	checkoutService      services.CheckoutService
}

func NewParticipationHandler(
	participationService services.ParticipationService,
	reconciler services.Reconciler,
	checkoutService services.CheckoutService,
) *ParticipationHandler {
	return &ParticipationHandler{
		participationService: participationService,
		reconciler:           reconciler,
		checkoutService:      checkoutService,
	}
}

// JoinRide books a pending seat claim. The body is optional and only carries
// a split amount.
func (h *ParticipationHandler) JoinRide(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var request validators.JoinRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			bindError(c, err)
			return
		}
		if err := validators.ValidateStruct(&request).AsAppError(); err != nil {
			respondError(c, err)
			return
		}
	}

	participation, err := h.participationService.JoinRide(c.Request.Context(), rideID, middleware.CurrentPrincipal(c).UserID, request.SplitAmount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, utils.MsgRideJoined, participation)
}

func (h *ParticipationHandler) ListParticipants(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	participations, err := h.participationService.ListByRide(c.Request.Context(), rideID, middleware.CurrentPrincipal(c))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, utils.MsgDataRetrieved, participations, &utils.Meta{Count: len(participations)})
}

func (h *ParticipationHandler) LeaveRide(c *gin.Context) {
	participationID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	participation, err := h.participationService.LeaveRide(c.Request.Context(), participationID, middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgRideLeft, participation)
}

// StartCheckout opens a hosted payment session for the caller's participation
func (h *ParticipationHandler) StartCheckout(c *gin.Context) {
	participationID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	result, err := h.checkoutService.StartCheckout(c.Request.Context(), participationID, middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, utils.MsgCheckoutStarted, result)
}

// MarkPaid applies a payment confirmed out of band. Mounted behind
// AdminRequired.
func (h *ParticipationHandler) MarkPaid(c *gin.Context) {
	participationID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var request validators.MarkPaidRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	if err := validators.ValidateStruct(&request).AsAppError(); err != nil {
		respondError(c, err)
		return
	}

	result, err := h.reconciler.MarkPaid(c.Request.Context(), participationID, request.PaymentReference, request.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgPaymentRecorded, result)
}
