package handlers

import (
	"carpool/internal/middleware"
	"carpool/internal/services"
	"carpool/internal/utils"
	"carpool/internal/validators"

	"github.com/gin-gonic/gin"
)

type ChatHandler struct {
	chatService services.ChatService
}

func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{
		chatService: chatService,
	}
}

func (h *ChatHandler) ListMessages(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	limit := utils.GetLimitParam(c, utils.DefaultChatLimit, utils.MaxChatLimit)
	messages, err := h.chatService.ListMessages(c.Request.Context(), rideID, middleware.CurrentPrincipal(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponseWithMeta(c, utils.MsgDataRetrieved, messages, &utils.Meta{Count: len(messages), Limit: limit})
}

func (h *ChatHandler) PostMessage(c *gin.Context) {
	rideID, err := validators.ParseObjectID("id", c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	var request validators.PostMessageRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		bindError(c, err)
		return
	}
	if err := validators.ValidateStruct(&request).AsAppError(); err != nil {
		respondError(c, err)
		return
	}

	message, err := h.chatService.PostMessage(c.Request.Context(), rideID, middleware.CurrentPrincipal(c).UserID, request.Content)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.CreatedResponse(c, utils.MsgMessagePosted, message)
}
