package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
)

type RideHandler struct {
	rideService services.RideService
}

func NewRideHandler(rideService services.RideService) *RideHandler {
	return &RideHandler{
		rideService: rideService,
	}
}

// CreateRide publishes a new ride owned by the caller
func (h *RideHandler) CreateRide(c *gin.Context) {
	var request validators.CreateRideRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	if err := validators.ValidateCreateRide(&request); err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), middleware.CurrentPrincipal(c).UserID, &services.CreateRideInput{
		Title:         request.Title,
		Origin:        request.Origin,
		Destination:   request.Destination,
		DepartureTime: request.DepartureTime,
		TotalSeats:    request.TotalSeats,
		PricePerSeat:  request.PricePerSeat,
		Currency:      request.Currency,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, utils.MsgRideCreated, ride)
}

// ListRides returns active rides with seats left
func (h *RideHandler) ListRides(c *gin.Context) {
	var query validators.ListRidesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		bindError(c, err)
		return
	}
	if err := validators.ValidateStruct(&query).AsAppError(); err != nil {
		respondError(c, err)
		return
	}

	rides, err := h.rideService.ListActive(c.Request.Context(), query.Filter())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, utils.MsgDataRetrieved, rides, &utils.Meta{Count: len(rides)})
}

// GetMyRides returns the caller's upcoming rides, both offered and joined
func (h *RideHandler) GetMyRides(c *gin.Context) {
	userID := middleware.CurrentPrincipal(c).UserID

	owned, err := h.rideService.ListOwned(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	joined, err := h.rideService.ListJoined(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgDataRetrieved, gin.H{
		"owned":  owned,
		"joined": joined,
	})
}

func (h *RideHandler) GetRide(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), rideID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgDataRetrieved, ride)
}

// UpdateRide edits title, places or departure time. Seat counts, price and
// status are rejected.
func (h *RideHandler) UpdateRide(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	body, err := c.GetRawData()
	if err != nil {
		bindError(c, err)
		return
	}
	request, err := validators.DecodeUpdateRide(body)
	if err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.UpdateRide(c.Request.Context(), rideID, middleware.CurrentPrincipal(c).UserID, request.ToUpdate())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgRideUpdated, ride)
}

func (h *RideHandler) CancelRide(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), rideID, middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgRideCancelled, ride)
}

func (h *RideHandler) CompleteRide(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	ride, err := h.rideService.CompleteRide(c.Request.Context(), rideID, middleware.CurrentPrincipal(c).UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, utils.MsgRideCompleted, ride)
}
