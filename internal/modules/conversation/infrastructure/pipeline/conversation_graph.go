package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/infrastructure/references"
	convTools "RAGLink/internal/modules/conversation/infrastructure/tools"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

// 单轮会话最多允许的工具调用轮数
const maxToolIterations = 3

// 拼接上下文时取的历史消息条数
const historyLimit = 10

type conversationState struct {
	Req            *ConversationRequest
	Scope          DataScope
	SystemPrompt   string
	History        []*conversation.ChatMessage
	Tools          []tool.BaseTool
	PromptMsgs     []schema.Message
	LastResponse   *schema.Message
	IterationCount int
	MaxIterations  int
	ToolCalls      int
	// ToolMsgs 本轮已落库的 tool 消息，引用抽取的输入
	ToolMsgs []*conversation.ChatMessage
	Answer   string
	Start    time.Time
	Err      error
}

func convertToPointers(msgs []schema.Message) []*schema.Message {
	result := make([]*schema.Message, len(msgs))
	for i := range msgs {
		result[i] = &msgs[i]
	}
	return result
}

func (p *ConversationPipeline) loadContextNode(ctx context.Context, req *ConversationRequest, _ ...any) (*conversationState, error) {
	st := &conversationState{
		Req:           req,
		MaxIterations: maxToolIterations,
		Start:         time.Now(),
	}

	zlog.Info("conversation started",
		zap.String("user_id", req.UserID),
		zap.String("session_id", req.SessionID),
		zap.Int64("ai_message_id", req.AiMessageID),
		zap.Int("question_len", len(req.Question)))

	if strings.TrimSpace(req.UserID) == "" {
		st.Err = fmt.Errorf("user_id is required")
		return st, nil
	}
	if strings.TrimSpace(req.Question) == "" {
		st.Err = fmt.Errorf("question is required")
		return st, nil
	}
	if req.AiMessageID <= 0 {
		st.Err = fmt.Errorf("ai_message_id is required")
		return st, nil
	}

	history, err := p.messageRepo.ListRecentHistory(ctx, req.SessionID, historyLimit)
	if err != nil {
		st.Err = fmt.Errorf("load history failed: %w", err)
		return st, nil
	}
	st.History = history

	st.Scope = req.Scope
	if st.Scope == "" {
		st.Scope = ScopeSource
	}

	prompt, tools, err := p.bindScope(st.Scope, req.UserID)
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.SystemPrompt = prompt
	st.Tools = tools

	return st, nil
}

// bindScope 把资料范围映射到系统提示与工具集。
// 工具绑定当前用户，检索天然被租户隔离。未知范围直接失败。
func (p *ConversationPipeline) bindScope(scope DataScope, userID string) (string, []tool.BaseTool, error) {
	switch scope {
	case ScopeSource:
		return sourceSystemPromptTemplate, []tool.BaseTool{
			convTools.NewFileRetrievalTool(userID, p.fileRepo, p.embedder, p.vs),
			convTools.NewChunkRetrievalTool(userID, p.hybridEngine),
			convTools.NewNL2SQLTool(userID, p.nl2sqlEngine),
		}, nil
	}
	return "", nil, fmt.Errorf("unsupported data scope: %s", scope)
}

const sourceSystemPromptTemplate = `你是一個文件問答助手，根據使用者上傳的文件回答問題。

可用工具：
- retrieve_files：按語義找出最相關的文件及其摘要
- retrieve_chunks：在 PDF 文件內容中檢索相關段落原文
- query_tables：對 CSV/JSON/XML 匯入的資料表執行查詢

規則：
1. 回答必須基於工具返回的文件內容，不要編造。
2. 工具返回的內容不足以回答時，如實告訴使用者沒有找到相關資料。
3. 問題與文件無關的閒聊可直接回答，不必調用工具。
4. 用繁體中文回答。%s`

func (p *ConversationPipeline) buildPromptNode(ctx context.Context, st *conversationState, _ ...any) (*conversationState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}

	var scopeHint string
	if len(st.Req.ReferenceFileIDs) > 0 {
		scopeHint = fmt.Sprintf("\n5. 使用者指定了要參考的文件，檢索時把 file_ids 限定為：%s。",
			strings.Join(st.Req.ReferenceFileIDs, "、"))
	}

	msgs := []schema.Message{
		{Role: schema.System, Content: fmt.Sprintf(st.SystemPrompt, scopeHint)},
	}
	for _, m := range st.History {
		// 把本轮预创建的空 ai 消息排除在历史之外
		if m.Id == st.Req.AiMessageID {
			continue
		}
		role := schema.Assistant
		if m.Sender == conversation.SenderHuman {
			role = schema.User
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		msgs = append(msgs, schema.Message{Role: role, Content: m.Content})
	}
	msgs = append(msgs, schema.Message{Role: schema.User, Content: st.Req.Question})
	st.PromptMsgs = msgs

	zlog.Info("conversation prompt built",
		zap.String("session_id", st.Req.SessionID),
		zap.Int("history", len(st.History)),
		zap.Int("messages", len(msgs)))

	return st, nil
}

func (p *ConversationPipeline) chatModelNode(ctx context.Context, st *conversationState, _ ...any) (*conversationState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}

	opts := []model.Option{}
	var toolInfos []*schema.ToolInfo
	for _, t := range st.Tools {
		info, err := t.Info(ctx)
		if err == nil && info != nil {
			toolInfos = append(toolInfos, info)
		}
	}
	if len(toolInfos) > 0 {
		opts = append(opts, model.WithTools(toolInfos))
	}

	resp, err := p.chatModel.Generate(ctx, convertToPointers(st.PromptMsgs), opts...)
	if err != nil {
		st.Err = fmt.Errorf("chat model failed: %w", err)
		return st, nil
	}

	st.LastResponse = resp
	st.Answer = resp.Content

	zlog.Info("conversation llm response",
		zap.String("session_id", st.Req.SessionID),
		zap.Int("iteration", st.IterationCount),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("answer_len", len(resp.Content)))

	if len(resp.ToolCalls) > 0 {
		st.PromptMsgs = append(st.PromptMsgs, *resp)
	}

	return st, nil
}

func (p *ConversationPipeline) toolsNode(ctx context.Context, st *conversationState, _ ...any) (*conversationState, error) {
	if st == nil || st.Err != nil {
		return st, nil
	}
	if st.LastResponse == nil || len(st.LastResponse.ToolCalls) == 0 {
		return st, nil
	}

	st.IterationCount++

	var toolMsgs []schema.Message
	for _, tc := range st.LastResponse.ToolCalls {
		toolResp := p.invokeTool(ctx, st, tc)
		toolMsgs = append(toolMsgs, *toolResp)
		st.ToolCalls++

		p.persistToolMessage(ctx, st, tc, toolResp.Content)
	}
	st.PromptMsgs = append(st.PromptMsgs, toolMsgs...)

	zlog.Info("conversation tools executed",
		zap.String("session_id", st.Req.SessionID),
		zap.Int("iteration", st.IterationCount),
		zap.Int("tools", len(toolMsgs)))

	return st, nil
}

func (p *ConversationPipeline) invokeTool(ctx context.Context, st *conversationState, tc schema.ToolCall) *schema.Message {
	toolName := strings.TrimSpace(tc.Function.Name)
	toolArgs := strings.TrimSpace(tc.Function.Arguments)

	for _, t := range st.Tools {
		info, _ := t.Info(ctx)
		if info == nil || info.Name != toolName {
			continue
		}
		invokable, ok := t.(tool.InvokableTool)
		if !ok {
			return &schema.Message{Role: schema.Tool, Content: "Tool not invokable", ToolCallID: tc.ID}
		}
		result, err := invokable.InvokableRun(ctx, toolArgs)
		if err != nil {
			zlog.Warn("conversation tool failed",
				zap.String("tool_name", toolName),
				zap.String("session_id", st.Req.SessionID),
				zap.Error(err))
			return &schema.Message{
				Role:       schema.Tool,
				Content:    fmt.Sprintf("Error: %v", err),
				ToolCallID: tc.ID,
			}
		}
		return &schema.Message{Role: schema.Tool, Content: result, ToolCallID: tc.ID}
	}

	return &schema.Message{Role: schema.Tool, Content: "Tool not found", ToolCallID: tc.ID}
}

// persistToolMessage 把工具调用原样落库，挂在本轮 ai 消息下。
// 落库失败只记日志，不中断推理。
func (p *ConversationPipeline) persistToolMessage(ctx context.Context, st *conversationState, tc schema.ToolCall, output string) {
	m := &conversation.ChatMessage{
		SessionId:  st.Req.SessionID,
		UserId:     st.Req.UserID,
		ParentId:   st.Req.AiMessageID,
		Sender:     conversation.SenderTool,
		Content:    output,
		Status:     conversation.StatusCompleted,
		ToolName:   strings.TrimSpace(tc.Function.Name),
		ToolCallId: tc.ID,
		ToolArgs:   strings.TrimSpace(tc.Function.Arguments),
	}
	if err := p.messageRepo.Create(ctx, m); err != nil {
		zlog.Error("persist tool message failed",
			zap.String("session_id", st.Req.SessionID),
			zap.String("tool_name", m.ToolName),
			zap.Error(err))
		return
	}
	st.ToolMsgs = append(st.ToolMsgs, m)
}

func (p *ConversationPipeline) persistNode(ctx context.Context, st *conversationState, _ ...any) (*ConversationResult, error) {
	if st == nil {
		return &ConversationResult{Err: fmt.Errorf("nil state")}, nil
	}
	res := &ConversationResult{
		AiMessageID: st.Req.AiMessageID,
		Answer:      st.Answer,
		ToolCalls:   st.ToolCalls,
		DurationMs:  time.Since(st.Start).Milliseconds(),
		Err:         st.Err,
	}
	if st.Err != nil {
		return res, nil
	}

	var refs []*references.Reference
	if p.extractor != nil {
		refs = p.extractor.Extract(ctx, st.Req.UserID, st.Req.ReferenceFileIDs, st.ToolMsgs)
	}
	res.References = refs

	if err := p.messageRepo.UpdateContent(ctx, st.Req.AiMessageID, st.Answer, references.MarshalReferences(refs)); err != nil {
		res.Err = fmt.Errorf("persist answer failed: %w", err)
		return res, nil
	}
	if err := p.sessionRepo.Touch(ctx, st.Req.SessionID); err != nil {
		zlog.Warn("touch session failed", zap.String("session_id", st.Req.SessionID), zap.Error(err))
	}

	zlog.Info("conversation done",
		zap.String("session_id", st.Req.SessionID),
		zap.Int64("ai_message_id", st.Req.AiMessageID),
		zap.Int("tool_calls", st.ToolCalls),
		zap.Int("references", len(refs)),
		zap.Int64("duration_ms", res.DurationMs))

	return res, nil
}
