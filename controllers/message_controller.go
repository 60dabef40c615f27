package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/cppla/microblog/models"
	"github.com/cppla/microblog/utils"
)

// MessageController serves private messages.
type MessageController struct {
	db *gorm.DB
}

// NewMessageController creates a new MessageController.
func NewMessageController(db *gorm.DB) *MessageController {
	return &MessageController{db: db}
}

type messageRequest struct {
	Message string `json:"message" binding:"required"`
}

// Recipient returns the user a message would be sent to.
func (m *MessageController) Recipient(ctx *gin.Context) {
	recipient, ok := lookupUser(ctx, m.db, ctx.Param("username"))
	if !ok {
		return
	}
	utils.Success(ctx, gin.H{"recipient": userSummary(recipient)})
}

// Send delivers a private message to the user in the path.
func (m *MessageController) Send(ctx *gin.Context) {
	recipient, ok := lookupUser(ctx, m.db, ctx.Param("username"))
	if !ok {
		return
	}
	var req messageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	msg, err := models.SendMessage(m.db, currentUser(ctx), recipient, req.Message)
	if err != nil {
		respondModelError(ctx, err, 50030, "failed to send message")
		return
	}
	utils.Respond(ctx, http.StatusCreated, 0, "your message has been sent", messageView(*msg))
}

// Inbox lists received messages newest first and marks them all read.
func (m *MessageController) Inbox(ctx *gin.Context) {
	me := currentUser(ctx)
	now := time.Now().UTC()
	page := pageFromQuery(ctx)
	msgs, total, err := models.PageMessages(me.MessagesReceived(m.db), page)
	if err != nil {
		internalError(ctx, 50031, "failed to list messages", err)
		return
	}
	items := make([]gin.H, 0, len(msgs))
	for _, msg := range msgs {
		view := messageView(msg)
		view["unread"] = msg.IsUnread(me)
		items = append(items, view)
	}
	if err := me.MarkMessagesRead(m.db, now); err != nil {
		internalError(ctx, 50032, "failed to mark messages read", err)
		return
	}
	utils.Paginated(ctx, items, page, total)
}

// loadMessage loads the message in the path. A message sent by someone else redirects home;
// the username segment is not consulted.
func (m *MessageController) loadMessage(ctx *gin.Context) (*models.Message, bool) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid message id")
		return nil, false
	}
	msg, err := models.FindMessage(m.db, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Error(ctx, http.StatusNotFound, 40403, "message not found")
		return nil, false
	}
	if err != nil {
		internalError(ctx, 50033, "failed to load message", err)
		return nil, false
	}
	if msg.SenderID != currentUser(ctx).ID {
		redirectHome(ctx)
		return nil, false
	}
	return msg, true
}

// GetMessage returns a sent message for editing.
func (m *MessageController) GetMessage(ctx *gin.Context) {
	msg, ok := m.loadMessage(ctx)
	if !ok {
		return
	}
	view := messageView(*msg)
	view["recipient"] = userSummary(&msg.Recipient)
	utils.Success(ctx, view)
}

// EditMessage changes the body of a sent message the recipient has not read yet.
func (m *MessageController) EditMessage(ctx *gin.Context) {
	msg, ok := m.loadMessage(ctx)
	if !ok {
		return
	}
	var req messageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40030, "invalid request payload")
		return
	}
	err := models.EditMessage(m.db, msg, currentUser(ctx).ID, req.Message)
	switch {
	case errors.Is(err, models.ErrNotAuthor):
		redirectHome(ctx)
	case errors.Is(err, models.ErrMessageRead):
		utils.Error(ctx, http.StatusBadRequest, 40032, "message has already been read")
	case err != nil:
		respondModelError(ctx, err, 50034, "failed to update message")
	default:
		utils.Respond(ctx, http.StatusOK, 0, "your changes have been saved", messageView(*msg))
	}
}
