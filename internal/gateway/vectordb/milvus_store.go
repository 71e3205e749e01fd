package vectordb

import (
	"context"
	"errors"
	"fmt"
	"strings"

	mclient "github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 向量记录类型
const (
	DocKindFileSummary = "file_summary"
	DocKindChunk       = "chunk"
)

// RefID 规则："file:<file_uuid>" 或 "chunk:<chunk_id>"，
// 用于把 Milvus 命中结果映射回 MySQL 里的原始记录。

type UpsertItem struct {
	RefID   string
	Vector  []float32
	UserID  string
	FileID  string
	DocKind string
}

type SearchHit struct {
	RefID   string
	Score   float32
	UserID  string
	FileID  string
	DocKind string
}

type MilvusStore struct {
	cli         mclient.Client
	collection  string
	vectorField string
	metricType  entity.MetricType
	vectorDim   int
	searchParam entity.SearchParam
}

func NewMilvusStore(cli mclient.Client, collection string, vectorDim int, metricType entity.MetricType) (*MilvusStore, error) {
	if cli == nil {
		return nil, errors.New("milvus client is nil")
	}
	if strings.TrimSpace(collection) == "" {
		return nil, errors.New("collection is empty")
	}
	if vectorDim <= 0 {
		return nil, fmt.Errorf("invalid vectorDim: %d", vectorDim)
	}
	sp, err := entity.NewIndexAUTOINDEXSearchParam(1)
	if err != nil {
		return nil, err
	}
	return &MilvusStore{
		cli:         cli,
		collection:  collection,
		vectorField: "vector",
		metricType:  metricType,
		vectorDim:   vectorDim,
		searchParam: sp,
	}, nil
}

func (s *MilvusStore) Upsert(ctx context.Context, items []UpsertItem) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}
	ids := make([]string, 0, len(items))
	vectors := make([][]float32, 0, len(items))
	userIDs := make([]string, 0, len(items))
	fileIDs := make([]string, 0, len(items))
	docKinds := make([]string, 0, len(items))

	for _, it := range items {
		if it.RefID == "" {
			return nil, errors.New("upsert item missing RefID")
		}
		if len(it.Vector) != s.vectorDim {
			return nil, fmt.Errorf("vector dim mismatch for id=%s, got=%d want=%d", it.RefID, len(it.Vector), s.vectorDim)
		}
		ids = append(ids, it.RefID)
		vectors = append(vectors, it.Vector)
		userIDs = append(userIDs, it.UserID)
		fileIDs = append(fileIDs, it.FileID)
		docKinds = append(docKinds, it.DocKind)
	}

	_, err := s.cli.Upsert(
		ctx,
		s.collection,
		"",
		entity.NewColumnVarChar("id", ids),
		entity.NewColumnFloatVector(s.vectorField, s.vectorDim, vectors),
		entity.NewColumnVarChar("user_id", userIDs),
		entity.NewColumnVarChar("file_id", fileIDs),
		entity.NewColumnVarChar("doc_kind", docKinds),
	)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *MilvusStore) DeleteByRefIDs(ctx context.Context, refIDs []string) error {
	if len(refIDs) == 0 {
		return nil
	}
	expr := fmt.Sprintf(`id in ["%s"]`, strings.Join(refIDs, `","`))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

// DeleteByFile 删除某个文件的全部向量（文件摘要 + 所有分块）
func (s *MilvusStore) DeleteByFile(ctx context.Context, userID, fileID string) error {
	expr := fmt.Sprintf(`user_id == "%s" && file_id == "%s"`, escapeExprValue(userID), escapeExprValue(fileID))
	return s.cli.Delete(ctx, s.collection, "", expr)
}

func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, expr string) ([]SearchHit, error) {
	if len(vector) != s.vectorDim {
		return nil, fmt.Errorf("vector dim mismatch, got=%d want=%d", len(vector), s.vectorDim)
	}
	if topK <= 0 {
		topK = 5
	}
	res, err := s.cli.Search(
		ctx,
		s.collection,
		[]string{},
		expr,
		[]string{"user_id", "file_id", "doc_kind"},
		[]entity.Vector{entity.FloatVector(vector)},
		s.vectorField,
		s.metricType,
		topK,
		s.searchParam,
	)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return []SearchHit{}, nil
	}
	return parseSearchResult(res[0])
}

// BuildFilterExpr 构造用户隔离 + 文件范围 + 记录类型的过滤表达式
func BuildFilterExpr(userID string, fileIDs []string, docKind string) string {
	parts := []string{fmt.Sprintf(`user_id == "%s"`, escapeExprValue(userID))}
	if len(fileIDs) > 0 {
		quoted := make([]string, 0, len(fileIDs))
		for _, id := range fileIDs {
			quoted = append(quoted, fmt.Sprintf(`"%s"`, escapeExprValue(id)))
		}
		parts = append(parts, fmt.Sprintf("file_id in [%s]", strings.Join(quoted, ", ")))
	}
	if docKind != "" {
		parts = append(parts, fmt.Sprintf(`doc_kind == "%s"`, escapeExprValue(docKind)))
	}
	return strings.Join(parts, " && ")
}

func escapeExprValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}

func parseSearchResult(sr mclient.SearchResult) ([]SearchHit, error) {
	if sr.Err != nil {
		return nil, sr.Err
	}
	hits := make([]SearchHit, 0, sr.ResultCount)

	idCol := sr.IDs
	userCol := columnByName(sr.Fields, "user_id")
	fileCol := columnByName(sr.Fields, "file_id")
	kindCol := columnByName(sr.Fields, "doc_kind")

	for i := 0; i < sr.ResultCount; i++ {
		id, _ := idCol.GetAsString(i)
		score := float32(0)
		if i < len(sr.Scores) {
			score = sr.Scores[i]
		}

		h := SearchHit{RefID: id, Score: score}
		if userCol != nil {
			v, _ := userCol.GetAsString(i)
			h.UserID = v
		}
		if fileCol != nil {
			v, _ := fileCol.GetAsString(i)
			h.FileID = v
		}
		if kindCol != nil {
			v, _ := kindCol.GetAsString(i)
			h.DocKind = v
		}
		hits = append(hits, h)
	}

	return hits, nil
}

func columnByName(cols mclient.ResultSet, name string) entity.Column {
	for _, c := range cols {
		if c != nil && c.Name() == name {
			return c
		}
	}
	return nil
}
