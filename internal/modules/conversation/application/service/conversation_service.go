package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"RAGLink/internal/modules/conversation/application/dto/request"
	"RAGLink/internal/modules/conversation/application/dto/respond"
	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/domain/repository"
	"RAGLink/internal/modules/conversation/infrastructure/queue"
	"RAGLink/internal/modules/conversation/infrastructure/suggestion"
	"RAGLink/internal/mq"
	"RAGLink/pkg/util"
	"RAGLink/pkg/xerr"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

var (
	ErrEmptyQuestion  = xerr.New(xerr.BadRequest, "问题不能为空")
	ErrMessageMissing = xerr.New(xerr.NotFound, "消息不存在")
)

const defaultHistoryLimit = 50

// ConversationService 会话应用服务。提问走异步：落库 human/ai 两条消息后
// 投递 Kafka，由 ConversationConsumerWorker 生成答案。
type ConversationService interface {
	Ask(ctx context.Context, userID string, req *request.AskRequest) (*respond.AskRespond, error)
	History(ctx context.Context, userID string) (*respond.HistoryRespond, error)
	GetMessage(ctx context.Context, userID string, messageID int64) (*respond.MessageDetail, error)
	Suggestions(ctx context.Context, userID string) (*respond.SuggestionsRespond, error)
	ClearHistory(ctx context.Context, userID string) error
}

type conversationServiceImpl struct {
	sessionRepo repository.ChatSessionRepository
	messageRepo repository.ChatMessageRepository
	suggester   *suggestion.Suggester
	publisher   mq.Publisher
	topic       string
}

func NewConversationService(
	sessionRepo repository.ChatSessionRepository,
	messageRepo repository.ChatMessageRepository,
	suggester *suggestion.Suggester,
	publisher mq.Publisher,
	topic string,
) ConversationService {
	return &conversationServiceImpl{
		sessionRepo: sessionRepo,
		messageRepo: messageRepo,
		suggester:   suggester,
		publisher:   publisher,
		topic:       topic,
	}
}

func (s *conversationServiceImpl) Ask(ctx context.Context, userID string, req *request.AskRequest) (*respond.AskRespond, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	session, err := s.getOrCreateSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	humanMsg := &conversation.ChatMessage{
		SessionId: session.Id,
		UserId:    userID,
		Sender:    conversation.SenderHuman,
		Content:   question,
		Status:    conversation.StatusCompleted,
	}
	if err := s.messageRepo.Create(ctx, humanMsg); err != nil {
		return nil, err
	}

	aiMsg := &conversation.ChatMessage{
		SessionId: session.Id,
		UserId:    userID,
		Sender:    conversation.SenderAI,
		Status:    conversation.StatusPending,
	}
	if err := s.messageRepo.Create(ctx, aiMsg); err != nil {
		return nil, err
	}

	ev := queue.ConversationEvent{
		UserID:           userID,
		SessionID:        session.Id,
		AiMessageID:      aiMsg.Id,
		Question:         question,
		DataScope:        strings.TrimSpace(req.DataScope),
		ReferenceFileIDs: req.ReferenceFileIds,
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	if _, err := s.publisher.Publish(ctx, mq.Message{
		Topic: s.topic,
		Key:   []byte(session.Id),
		Value: payload,
	}); err != nil {
		// 入队失败直接标 FAILED，避免消息停在 PENDING 无人处理
		traceback := fmt.Sprintf("入队失败: %v", err)
		_ = s.messageRepo.UpdateStatus(ctx, aiMsg.Id, conversation.StatusFailed, traceback)
		zlog.Error("publish conversation event failed",
			zap.String("user_id", userID),
			zap.Int64("ai_message_id", aiMsg.Id),
			zap.Error(err))
		return nil, err
	}

	return &respond.AskRespond{
		SessionId:   session.Id,
		HumanMsgId:  humanMsg.Id,
		AiMessageId: aiMsg.Id,
	}, nil
}

// getOrCreateSession 每用户惰性创建唯一会话。并发首问撞上唯一索引时重读。
func (s *conversationServiceImpl) getOrCreateSession(ctx context.Context, userID string) (*conversation.ChatSession, error) {
	session, err := s.sessionRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session != nil {
		return session, nil
	}

	session = &conversation.ChatSession{
		Id:     util.GenerateUUID(),
		UserId: userID,
		Title:  "默认会话",
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		existing, getErr := s.sessionRepo.GetByUser(ctx, userID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return session, nil
}

func (s *conversationServiceImpl) History(ctx context.Context, userID string) (*respond.HistoryRespond, error) {
	session, err := s.sessionRepo.GetByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return &respond.HistoryRespond{Messages: []respond.MessageItem{}}, nil
	}

	msgs, err := s.messageRepo.ListBySession(ctx, session.Id, defaultHistoryLimit)
	if err != nil {
		return nil, err
	}
	items := make([]respond.MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageItem(m))
	}
	return &respond.HistoryRespond{SessionId: session.Id, Messages: items}, nil
}

func (s *conversationServiceImpl) GetMessage(ctx context.Context, userID string, messageID int64) (*respond.MessageDetail, error) {
	m, err := s.messageRepo.GetByID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if m == nil || m.IsDeleted || m.UserId != userID {
		return nil, ErrMessageMissing
	}

	detail := &respond.MessageDetail{MessageItem: toMessageItem(m)}
	if m.Sender == conversation.SenderAI {
		children, err := s.messageRepo.ListChildren(ctx, m.Id)
		if err != nil {
			zlog.Warn("list tool trace failed", zap.Int64("message_id", m.Id), zap.Error(err))
		}
		for _, c := range children {
			if !c.IsToolMessage() {
				continue
			}
			detail.ToolTrace = append(detail.ToolTrace, respond.ToolTraceItem{
				Id:        c.Id,
				ToolName:  c.ToolName,
				ToolArgs:  c.ToolArgs,
				Output:    c.Content,
				CreatedAt: c.CreatedAt,
			})
		}
	}
	return detail, nil
}

func (s *conversationServiceImpl) Suggestions(ctx context.Context, userID string) (*respond.SuggestionsRespond, error) {
	questions := s.suggester.Suggest(ctx, userID)
	if questions == nil {
		questions = []string{}
	}
	return &respond.SuggestionsRespond{Questions: questions}, nil
}

func (s *conversationServiceImpl) ClearHistory(ctx context.Context, userID string) error {
	session, err := s.sessionRepo.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	if session == nil {
		return nil
	}
	return s.messageRepo.SoftDeleteBySession(ctx, session.Id)
}

func toMessageItem(m *conversation.ChatMessage) respond.MessageItem {
	item := respond.MessageItem{
		Id:        m.Id,
		Sender:    m.Sender,
		Content:   m.Content,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
	if strings.TrimSpace(m.ReferencesJson) != "" {
		var refs []respond.ReferenceItem
		if err := json.Unmarshal([]byte(m.ReferencesJson), &refs); err == nil {
			item.References = refs
		}
	}
	return item
}
