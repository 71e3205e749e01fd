package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/pipeline"
	"RAGLink/internal/mq"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

// ExtractEvent 文件解析任务消息体
type ExtractEvent struct {
	FileID string `json:"file_id"`
	UserID string `json:"user_id"`
}

// ExtractConsumerWorker 消费文件解析任务：
// 置 PROCESSING → 按格式走 PDF 或结构化管线 → 成功置 COMPLETED，失败置 FAILED 并落堆栈
type ExtractConsumerWorker struct {
	consumer mq.Consumer

	fileRepo       repository.SourceFileRepository
	pdfPipe        *pipeline.PDFIngestPipeline
	structuredPipe *pipeline.StructuredIngestPipeline

	concurrency int
	sem         chan struct{}
}

func NewExtractConsumerWorker(
	consumer mq.Consumer,
	fileRepo repository.SourceFileRepository,
	pdfPipe *pipeline.PDFIngestPipeline,
	structuredPipe *pipeline.StructuredIngestPipeline,
	concurrency int,
) *ExtractConsumerWorker {
	if concurrency <= 0 {
		concurrency = 2
	}
	return &ExtractConsumerWorker{
		consumer:       consumer,
		fileRepo:       fileRepo,
		pdfPipe:        pdfPipe,
		structuredPipe: structuredPipe,
		concurrency:    concurrency,
		sem:            make(chan struct{}, concurrency),
	}
}

func (w *ExtractConsumerWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.fileRepo == nil {
		return errors.New("file repo is nil")
	}
	return w.consumer.Run(ctx, w)
}

func (w *ExtractConsumerWorker) Handle(ctx context.Context, msg mq.Message) error {
	var ev ExtractEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		zlog.Warn("extract consumer invalid payload", zap.String("topic", msg.Topic), zap.Error(err))
		return nil
	}
	if strings.TrimSpace(ev.FileID) == "" {
		zlog.Warn("extract consumer missing file_id", zap.String("topic", msg.Topic))
		return nil
	}

	w.sem <- struct{}{}
	defer func() { <-w.sem }()

	file, err := w.fileRepo.GetByID(ctx, ev.FileID)
	if err != nil {
		zlog.Warn("extract consumer get file failed", zap.String("file_id", ev.FileID), zap.Error(err))
		return err
	}
	if file == nil {
		// 文件在出队前被删除，丢弃消息
		return nil
	}
	if file.Status == source.StatusCompleted {
		return nil
	}

	if err := w.fileRepo.UpdateStatus(ctx, file.Id, source.StatusProcessing, ""); err != nil {
		zlog.Warn("extract consumer mark processing failed", zap.String("file_id", file.Id), zap.Error(err))
		return err
	}

	procErr := w.process(ctx, file)
	if procErr != nil {
		traceback := fmt.Sprintf("%v\n%s", procErr, debug.Stack())
		_ = w.fileRepo.UpdateStatus(ctx, file.Id, source.StatusFailed, traceback)
		zlog.Warn("extract consumer file failed",
			zap.String("file_id", file.Id),
			zap.String("user_id", file.UserId),
			zap.String("format", file.Format),
			zap.Error(procErr))
		return nil
	}

	if err := w.fileRepo.UpdateStatus(ctx, file.Id, source.StatusCompleted, ""); err != nil {
		zlog.Warn("extract consumer mark completed failed", zap.String("file_id", file.Id), zap.Error(err))
		return err
	}
	return nil
}

func (w *ExtractConsumerWorker) process(ctx context.Context, file *source.SourceFile) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract panic: %v", r)
		}
	}()

	switch {
	case file.Format == source.FormatPDF:
		if w.pdfPipe == nil {
			return errors.New("pdf pipeline is nil")
		}
		_, err = w.pdfPipe.Execute(ctx, &pipeline.PDFIngestRequest{FileID: file.Id, UserID: file.UserId})
		return err
	case source.IsStructuredFormat(file.Format):
		if w.structuredPipe == nil {
			return errors.New("structured pipeline is nil")
		}
		_, err = w.structuredPipe.Execute(ctx, &pipeline.StructuredIngestRequest{FileID: file.Id, UserID: file.UserId})
		return err
	default:
		return fmt.Errorf("unsupported format: %s", file.Format)
	}
}
