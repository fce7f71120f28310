package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/models"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ActivityHandler struct {
	activityService services.ActivityService
}

func NewActivityHandler(activityService services.ActivityService) *ActivityHandler {
	return &ActivityHandler{
		activityService: activityService,
	}
}

// ListActivity returns the caller's own log, newest first, optionally
// filtered by ?kind=.
func (h *ActivityHandler) ListActivity(c *gin.Context) {
	limit := utils.GetLimitParam(c, utils.DefaultActivityLimit, utils.MaxActivityLimit)
	kind := models.ActivityKind(c.Query("kind"))

	entries, err := h.activityService.List(c.Request.Context(), middleware.CurrentPrincipal(c).UserID, kind, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, utils.MsgDataRetrieved, entries, &utils.Meta{Count: len(entries), Limit: limit})
}

func (h *ActivityHandler) AppendActivity(c *gin.Context) {
	var request validators.AppendActivityRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	if err := validators.ValidateStruct(&request).AsAppError(); err != nil {
		respondError(c, err)
		return
	}

	var rideID *primitive.ObjectID
	if request.RideID != "" {
		id, err := validators.ParseObjectID("ride_id", request.RideID)
		if err != nil {
			respondError(c, err)
			return
		}
		rideID = &id
	}

	entry, err := h.activityService.RecordClientAction(c.Request.Context(), middleware.CurrentPrincipal(c).UserID, rideID, models.ActivityKind(request.Action), request.Metadata)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, utils.MsgActivityRecorded, entry)
}
