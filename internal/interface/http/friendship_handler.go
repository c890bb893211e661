package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/go-ddd-friendship/internal/application"
	"github.com/oksasatya/go-ddd-friendship/internal/interface/middleware"
	"github.com/oksasatya/go-ddd-friendship/pkg/apperror"
	"github.com/oksasatya/go-ddd-friendship/pkg/response"
	"github.com/oksasatya/go-ddd-friendship/pkg/validation"
)

type FriendshipHandler struct {
	Svc *application.FriendshipService
}

func NewFriendshipHandler(svc *application.FriendshipService) *FriendshipHandler {
	return &FriendshipHandler{Svc: svc}
}

type sendFriendRequest struct {
	ToUser *json.Number `json:"to_user"`
}

// SendRequest POST /friend-request/ {to_user}
func (h *FriendshipHandler) SendRequest(c *gin.Context) {
	var req sendFriendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var se *json.SyntaxError
		switch {
		case errors.Is(err, io.EOF):
			// empty body, reported like a missing field below
		case errors.As(err, &se):
			response.Error[any](c, http.StatusBadRequest, "invalid payload", validation.ToDetails(err))
			return
		default:
			writeError(c, application.ErrInvalidRecipient)
			return
		}
	}
	if req.ToUser == nil || isZero(*req.ToUser) {
		response.Error[any](c, http.StatusBadRequest, "to_user is required.", apperror.CodeValidation)
		return
	}
	toUser, err := req.ToUser.Int64()
	if err != nil || toUser <= 0 {
		writeError(c, application.ErrInvalidRecipient)
		return
	}

	f, err := h.Svc.SendFriendRequest(c.Request.Context(), middleware.UserID(c), toUser)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, toFriendshipDTO(f), "Friend request sent successfully.", nil)
}

// isZero treats a numeric zero like an absent to_user.
func isZero(n json.Number) bool {
	f, err := n.Float64()
	return err == nil && f == 0
}

// AcceptRequest POST /accept-friend-request/:id/ where id is the edge id.
func (h *FriendshipHandler) AcceptRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	f, err := h.Svc.AcceptFriendRequest(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toFriendshipDTO(f), "Friend request accepted.", nil)
}

// RejectRequest DELETE /reject-request/:id/ where id is the requester.
func (h *FriendshipHandler) RejectRequest(c *gin.Context) {
	fromUser, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Svc.RejectFriendRequest(c.Request.Context(), middleware.UserID(c), fromUser); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CancelRequest DELETE /cancel-request/:id/ where id is the recipient.
func (h *FriendshipHandler) CancelRequest(c *gin.Context) {
	toUser, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.Svc.CancelFriendRequest(c.Request.Context(), middleware.UserID(c), toUser); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *FriendshipHandler) Friends(c *gin.Context) {
	fs, err := h.Svc.ListFriends(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toFriendshipDTOs(fs), "friends", map[string]any{"count": len(fs)})
}

func (h *FriendshipHandler) PendingRequests(c *gin.Context) {
	fs, err := h.Svc.ListPending(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toFriendshipDTOs(fs), "pending requests", map[string]any{"count": len(fs)})
}

func (h *FriendshipHandler) SentRequests(c *gin.Context) {
	fs, err := h.Svc.ListSent(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, toFriendshipDTOs(fs), "sent requests", map[string]any{"count": len(fs)})
}
