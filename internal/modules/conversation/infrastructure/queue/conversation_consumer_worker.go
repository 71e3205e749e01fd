package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"RAGLink/internal/modules/conversation/domain/conversation"
	"RAGLink/internal/modules/conversation/domain/repository"
	"RAGLink/internal/modules/conversation/infrastructure/pipeline"
	"RAGLink/internal/mq"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

// 会话失败时写给用户看的固定话术，错误明细只留在 traceback
const failedAnswer = "抱歉，系統暫時無法回答這個問題，請稍後再試。"

// ConversationEvent 会话任务消息体
type ConversationEvent struct {
	UserID           string   `json:"user_id"`
	SessionID        string   `json:"session_id"`
	AiMessageID      int64    `json:"ai_message_id"`
	Question         string   `json:"question"`
	DataScope        string   `json:"data_scope,omitempty"`
	ReferenceFileIDs []string `json:"reference_file_ids,omitempty"`
}

// ConversationRunner 执行单轮会话编排，生产实现是 pipeline.ConversationPipeline
type ConversationRunner interface {
	Execute(ctx context.Context, req *pipeline.ConversationRequest) (*pipeline.ConversationResult, error)
}

// ConversationConsumerWorker 消费会话任务：
// 置 PROCESSING → 跑编排管线 → 成功置 COMPLETED，失败写固定话术并置 FAILED
type ConversationConsumerWorker struct {
	consumer    mq.Consumer
	messageRepo repository.ChatMessageRepository
	pipe        ConversationRunner

	concurrency int
	sem         chan struct{}
}

func NewConversationConsumerWorker(
	consumer mq.Consumer,
	messageRepo repository.ChatMessageRepository,
	pipe ConversationRunner,
	concurrency int,
) *ConversationConsumerWorker {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &ConversationConsumerWorker{
		consumer:    consumer,
		messageRepo: messageRepo,
		pipe:        pipe,
		concurrency: concurrency,
		sem:         make(chan struct{}, concurrency),
	}
}

func (w *ConversationConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.messageRepo == nil || w.pipe == nil {
		return errors.New("worker dependencies are nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *ConversationConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var ev ConversationEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		zlog.Warn("conversation consumer invalid payload", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	if ev.AiMessageID <= 0 || strings.TrimSpace(ev.UserID) == "" {
		zlog.Warn("conversation consumer missing fields", zap.String("topic", msg.Topic))
		return nil
	}

	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	m, err := w.messageRepo.GetByID(ctx, ev.AiMessageID)
	if err != nil {
		zlog.Warn("conversation consumer get message failed", zap.Int64("ai_message_id", ev.AiMessageID), zap.Error(err))
		return err
	}
	if m == nil || m.IsDeleted {
		// 消息在出队前被删除，丢弃
		return nil
	}
	if m.Status == conversation.StatusCompleted {
		return nil
	}

	if err := w.messageRepo.UpdateStatus(ctx, ev.AiMessageID, conversation.StatusProcessing, ""); err != nil {
		zlog.Warn("conversation consumer mark processing failed", zap.Int64("ai_message_id", ev.AiMessageID), zap.Error(err))
		return err
	}

	procErr := w.process(ctx, &ev)
	if procErr != nil {
		traceback := fmt.Sprintf("%v\n%s", procErr, debug.Stack())
		if err := w.messageRepo.UpdateContent(ctx, ev.AiMessageID, failedAnswer, ""); err != nil {
			zlog.Warn("conversation consumer write failed answer failed", zap.Int64("ai_message_id", ev.AiMessageID), zap.Error(err))
		}
		_ = w.messageRepo.UpdateStatus(ctx, ev.AiMessageID, conversation.StatusFailed, traceback)
		zlog.Warn("conversation consumer message failed",
			zap.Int64("ai_message_id", ev.AiMessageID),
			zap.String("user_id", ev.UserID),
			zap.Error(procErr))
		return nil
	}

	if err := w.messageRepo.UpdateStatus(ctx, ev.AiMessageID, conversation.StatusCompleted, ""); err != nil {
		zlog.Warn("conversation consumer mark completed failed", zap.Int64("ai_message_id", ev.AiMessageID), zap.Error(err))
		return err
	}
	return nil
}

func (w *ConversationConsumerWorker) process(ctx context.Context, ev *ConversationEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversation panic: %v", r)
		}
	}()

	_, err = w.pipe.Execute(ctx, &pipeline.ConversationRequest{
		UserID:           ev.UserID,
		SessionID:        ev.SessionID,
		AiMessageID:      ev.AiMessageID,
		Question:         ev.Question,
		Scope:            pipeline.DataScope(ev.DataScope),
		ReferenceFileIDs: ev.ReferenceFileIDs,
	})
	return err
}
