package http

import (
	"strconv"
	"strings"

	"RAGLink/internal/modules/conversation/application/dto/request"
	"RAGLink/internal/modules/conversation/application/service"
	"RAGLink/pkg/back"
	"RAGLink/pkg/xerr"
	"RAGLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationHandler 会话 HTTP Handler
type ConversationHandler struct {
	svc service.ConversationService
}

func NewConversationHandler(svc service.ConversationService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

// Ask 提问，答案异步生成
//
// 路由: POST /conversation/ask
func (h *ConversationHandler) Ask(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	var req request.AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	data, err := h.svc.Ask(c.Request.Context(), userID, &req)
	if err != nil {
		zlog.Error("ask failed", zap.String("user_id", userID), zap.Error(err))
	}
	back.Result(c, data, err)
}

// History 会话历史（不含 tool 消息）
//
// 路由: GET /conversation/history
func (h *ConversationHandler) History(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	data, err := h.svc.History(c.Request.Context(), userID)
	if err != nil {
		zlog.Error("history failed", zap.String("user_id", userID), zap.Error(err))
	}
	back.Result(c, data, err)
}

// GetMessage 消息详情，ai 消息附带工具调用轨迹
//
// 路由: GET /conversation/messages/:id
func (h *ConversationHandler) GetMessage(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		back.Error(c, xerr.BadRequest, xerr.ErrParam.Message)
		return
	}

	data, err := h.svc.GetMessage(c.Request.Context(), userID, id)
	if err != nil {
		zlog.Error("get message failed", zap.String("user_id", userID), zap.Int64("message_id", id), zap.Error(err))
	}
	back.Result(c, data, err)
}

// Suggestions 推荐问题
//
// 路由: GET /conversation/suggestions
func (h *ConversationHandler) Suggestions(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	data, err := h.svc.Suggestions(c.Request.Context(), userID)
	if err != nil {
		zlog.Error("suggestions failed", zap.String("user_id", userID), zap.Error(err))
	}
	back.Result(c, data, err)
}

// ClearHistory 软删除会话全部消息
//
// 路由: DELETE /conversation/history
func (h *ConversationHandler) ClearHistory(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	err := h.svc.ClearHistory(c.Request.Context(), userID)
	if err != nil {
		zlog.Error("clear history failed", zap.String("user_id", userID), zap.Error(err))
	}
	back.Result(c, nil, err)
}
