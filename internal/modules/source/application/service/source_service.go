package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/application/dto/respond"
	"RAGLink/internal/modules/source/domain/repository"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/database"
	"RAGLink/internal/modules/source/infrastructure/queue"
	"RAGLink/internal/modules/source/infrastructure/storage"
	"RAGLink/internal/mq"
	"RAGLink/pkg/util"
	"RAGLink/pkg/xerr"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
)

var (
	ErrUnsupportedFormat = xerr.New(xerr.BadRequest, "不支持的文件格式，仅支持 pdf/csv/json/xml")
	ErrFileNotFound      = xerr.New(xerr.NotFound, "文件不存在")
)

// SourceService 源文件管理：上传入队、列表、详情、删除、重新处理
type SourceService interface {
	Upload(ctx context.Context, userID, username, filename string, r io.Reader) (*respond.UploadRespond, error)
	List(ctx context.Context, userID string) ([]respond.SourceFileItem, error)
	Get(ctx context.Context, userID, fileID string) (*respond.SourceFileDetail, error)
	Delete(ctx context.Context, userID, fileID string) error
	Reprocess(ctx context.Context, userID, fileID string) error
}

type sourceServiceImpl struct {
	fileRepo  repository.SourceFileRepository
	chunkRepo repository.SourceFileChunkRepository
	tableRepo repository.SourceFileTableRepository

	store       *storage.LocalStore
	provisioner *database.Provisioner
	vs          *vectordb.MilvusStore

	publisher    mq.Publisher
	extractTopic string
}

func NewSourceService(
	fileRepo repository.SourceFileRepository,
	chunkRepo repository.SourceFileChunkRepository,
	tableRepo repository.SourceFileTableRepository,
	store *storage.LocalStore,
	provisioner *database.Provisioner,
	vs *vectordb.MilvusStore,
	publisher mq.Publisher,
	extractTopic string,
) SourceService {
	return &sourceServiceImpl{
		fileRepo:     fileRepo,
		chunkRepo:    chunkRepo,
		tableRepo:    tableRepo,
		store:        store,
		provisioner:  provisioner,
		vs:           vs,
		publisher:    publisher,
		extractTopic: extractTopic,
	}
}

func (s *sourceServiceImpl) Upload(ctx context.Context, userID, username, filename string, r io.Reader) (*respond.UploadRespond, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if format != source.FormatPDF && !source.IsStructuredFormat(format) {
		return nil, ErrUnsupportedFormat
	}

	fileID := util.GenerateUUID()
	path, size, err := s.store.Save(username, fileID, format, r)
	if err != nil {
		zlog.Error("save upload failed", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	file := &source.SourceFile{
		Id:        fileID,
		UserId:    userID,
		Name:      filename,
		Format:    format,
		Path:      path,
		SizeBytes: size,
		Status:    source.StatusPending,
	}
	if err := s.fileRepo.Create(ctx, file); err != nil {
		_ = s.store.Remove(path)
		return nil, err
	}

	if err := s.publishExtract(ctx, fileID, userID); err != nil {
		zlog.Error("publish extract event failed", zap.String("file_id", fileID), zap.Error(err))
		_ = s.fileRepo.UpdateStatus(ctx, fileID, source.StatusFailed, "入队失败: "+err.Error())
		return nil, err
	}

	return &respond.UploadRespond{
		FileID: fileID,
		Name:   filename,
		Format: format,
		Status: source.StatusPending,
	}, nil
}

func (s *sourceServiceImpl) List(ctx context.Context, userID string) ([]respond.SourceFileItem, error) {
	files, err := s.fileRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]respond.SourceFileItem, 0, len(files))
	for _, f := range files {
		items = append(items, toFileItem(f))
	}
	return items, nil
}

func (s *sourceServiceImpl) Get(ctx context.Context, userID, fileID string) (*respond.SourceFileDetail, error) {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}

	detail := &respond.SourceFileDetail{SourceFileItem: toFileItem(file)}
	if file.Status == source.StatusFailed {
		detail.Traceback = file.Traceback
	}

	if source.IsStructuredFormat(file.Format) {
		tables, err := s.tableRepo.ListByFile(ctx, fileID)
		if err != nil {
			return nil, err
		}
		for _, t := range tables {
			detail.Tables = append(detail.Tables, respond.SourceTableItem{
				DatabaseName: t.DatabaseName,
				TableName:    t.Name,
				SchemaJson:   t.SchemaJson,
				RowCount:     t.RowCount,
			})
		}
	}
	return detail, nil
}

func (s *sourceServiceImpl) Delete(ctx context.Context, userID, fileID string) error {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return err
	}

	if err := s.purgeDerived(ctx, file); err != nil {
		return err
	}
	if err := s.fileRepo.Delete(ctx, fileID); err != nil {
		return err
	}
	if err := s.store.Remove(file.Path); err != nil {
		zlog.Warn("remove file from disk failed", zap.String("file_id", fileID), zap.Error(err))
	}
	return nil
}

func (s *sourceServiceImpl) Reprocess(ctx context.Context, userID, fileID string) error {
	file, err := s.ownedFile(ctx, userID, fileID)
	if err != nil {
		return err
	}
	if file.Status == source.StatusProcessing {
		return xerr.New(xerr.BadRequest, "文件正在处理中")
	}

	if err := s.purgeDerived(ctx, file); err != nil {
		return err
	}
	if err := s.fileRepo.UpdateStatus(ctx, fileID, source.StatusPending, ""); err != nil {
		return err
	}
	if err := s.fileRepo.UpdateSummary(ctx, fileID, ""); err != nil {
		return err
	}
	return s.publishExtract(ctx, fileID, userID)
}

// purgeDerived 清掉文件的全部派生数据：分块、向量、导入表
func (s *sourceServiceImpl) purgeDerived(ctx context.Context, file *source.SourceFile) error {
	if err := s.vs.DeleteByFile(ctx, file.UserId, file.Id); err != nil {
		return fmt.Errorf("delete vectors: %w", err)
	}
	if err := s.chunkRepo.DeleteByFile(ctx, file.Id); err != nil {
		return err
	}

	tables, err := s.tableRepo.ListByFile(ctx, file.Id)
	if err != nil {
		return err
	}
	for _, t := range tables {
		if err := s.provisioner.DropTable(ctx, t.DatabaseName, t.Name); err != nil {
			zlog.Warn("drop provisioned table failed",
				zap.String("database", t.DatabaseName),
				zap.String("table", t.Name),
				zap.Error(err))
		}
	}
	return s.tableRepo.DeleteByFile(ctx, file.Id)
}

func (s *sourceServiceImpl) ownedFile(ctx context.Context, userID, fileID string) (*source.SourceFile, error) {
	file, err := s.fileRepo.GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if file == nil || file.UserId != userID {
		return nil, ErrFileNotFound
	}
	return file, nil
}

func (s *sourceServiceImpl) publishExtract(ctx context.Context, fileID, userID string) error {
	payload, err := json.Marshal(queue.ExtractEvent{FileID: fileID, UserID: userID})
	if err != nil {
		return err
	}
	_, err = s.publisher.Publish(ctx, mq.Message{
		Topic: s.extractTopic,
		Key:   []byte(fileID),
		Value: payload,
	})
	return err
}

func toFileItem(f *source.SourceFile) respond.SourceFileItem {
	item := respond.SourceFileItem{
		FileID:    f.Id,
		Name:      f.Name,
		Format:    f.Format,
		SizeBytes: f.SizeBytes,
		Status:    f.Status,
		Summary:   f.Summary,
		CreatedAt: f.CreatedAt,
	}
	if f.ProcessedAt.Valid {
		t := f.ProcessedAt.Time
		item.ProcessedAt = &t
	}
	return item
}
