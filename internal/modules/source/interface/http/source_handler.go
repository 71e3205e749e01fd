package http

import (
	"strings"

	"RAGLink/internal/modules/source/application/service"
	"RAGLink/pkg/back"
	"RAGLink/pkg/xerr"
	"RAGLink/pkg/zlog"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SourceHandler 源文件 HTTP Handler
type SourceHandler struct {
	svc service.SourceService
}

func NewSourceHandler(svc service.SourceService) *SourceHandler {
	return &SourceHandler{svc: svc}
}

// Upload 上传文件并触发解析
//
// 路由: POST /source/files
// 鉴权: 需要JWT
// 请求体: multipart/form-data，字段 file
func (h *SourceHandler) Upload(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	username := strings.TrimSpace(c.GetString("username"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		back.Error(c, xerr.BadRequest, "缺少上传文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		zlog.Error("open upload failed", zap.Error(err))
		back.Error(c, xerr.InternalServerError, xerr.ErrServerError.Message)
		return
	}
	defer f.Close()

	data, err := h.svc.Upload(c.Request.Context(), userID, username, fh.Filename, f)
	if err != nil {
		zlog.Error("upload failed", zap.String("user_id", userID), zap.String("name", fh.Filename), zap.Error(err))
	}
	back.Result(c, data, err)
}

// List 列出当前用户的全部文件
//
// 路由: GET /source/files
func (h *SourceHandler) List(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	data, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		zlog.Error("list files failed", zap.String("user_id", userID), zap.Error(err))
	}
	back.Result(c, data, err)
}

// Get 文件详情
//
// 路由: GET /source/files/:id
func (h *SourceHandler) Get(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	data, err := h.svc.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		zlog.Error("get file failed", zap.String("user_id", userID), zap.String("file_id", c.Param("id")), zap.Error(err))
	}
	back.Result(c, data, err)
}

// Delete 删除文件及其全部派生数据
//
// 路由: DELETE /source/files/:id
func (h *SourceHandler) Delete(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	err := h.svc.Delete(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		zlog.Error("delete file failed", zap.String("user_id", userID), zap.String("file_id", c.Param("id")), zap.Error(err))
	}
	back.Result(c, nil, err)
}

// Reprocess 清掉派生数据后重新入队解析
//
// 路由: POST /source/files/:id/reprocess
func (h *SourceHandler) Reprocess(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString("uuid"))
	if userID == "" {
		back.Error(c, xerr.Unauthorized, "未登录")
		return
	}

	err := h.svc.Reprocess(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		zlog.Error("reprocess file failed", zap.String("user_id", userID), zap.String("file_id", c.Param("id")), zap.Error(err))
	}
	back.Result(c, nil, err)
}
