package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"RAGLink/internal/gateway/vectordb"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/tabular"
	"RAGLink/pkg/zlog"

	"github.com/cloudwego/eino/compose"
	"go.uber.org/zap"
)

type structuredIngestState struct {
	Req  *StructuredIngestRequest
	File *source.SourceFile

	Tables       []*tabular.Table
	DatabaseName string
	RowsInserted int64
	Summary      string

	Start time.Time
	Err   error
}

func (p *StructuredIngestPipeline) buildGraph(ctx context.Context) (compose.Runnable[*StructuredIngestRequest, *StructuredIngestResult], error) {
	const (
		LoadFile  = "LoadFile"
		ClearOld  = "ClearOld"
		Parse     = "Parse"
		Provision = "Provision"
		Register  = "Register"
		Summarize = "Summarize"
		Embed     = "Embed"
		Finalize  = "Finalize"
	)

	g := compose.NewGraph[*StructuredIngestRequest, *StructuredIngestResult]()

	_ = g.AddLambdaNode(LoadFile, compose.InvokableLambdaWithOption(p.loadFileNode), compose.WithNodeName(LoadFile))
	_ = g.AddLambdaNode(ClearOld, compose.InvokableLambdaWithOption(p.clearOldNode), compose.WithNodeName(ClearOld))
	_ = g.AddLambdaNode(Parse, compose.InvokableLambdaWithOption(p.parseNode), compose.WithNodeName(Parse))
	_ = g.AddLambdaNode(Provision, compose.InvokableLambdaWithOption(p.provisionNode), compose.WithNodeName(Provision))
	_ = g.AddLambdaNode(Register, compose.InvokableLambdaWithOption(p.registerNode), compose.WithNodeName(Register))
	_ = g.AddLambdaNode(Summarize, compose.InvokableLambdaWithOption(p.summarizeNode), compose.WithNodeName(Summarize))
	_ = g.AddLambdaNode(Embed, compose.InvokableLambdaWithOption(p.embedNode), compose.WithNodeName(Embed))
	_ = g.AddLambdaNode(Finalize, compose.InvokableLambdaWithOption(p.finalizeNode), compose.WithNodeName(Finalize))

	_ = g.AddEdge(compose.START, LoadFile)
	_ = g.AddEdge(LoadFile, ClearOld)
	_ = g.AddEdge(ClearOld, Parse)
	_ = g.AddEdge(Parse, Provision)
	_ = g.AddEdge(Provision, Register)
	_ = g.AddEdge(Register, Summarize)
	_ = g.AddEdge(Summarize, Embed)
	_ = g.AddEdge(Embed, Finalize)
	_ = g.AddEdge(Finalize, compose.END)

	return g.Compile(ctx, compose.WithGraphName("StructuredIngestPipeline"), compose.WithNodeTriggerMode(compose.AllPredecessor))
}

func (p *StructuredIngestPipeline) loadFileNode(ctx context.Context, req *StructuredIngestRequest, _ ...any) (*structuredIngestState, error) {
	st := &structuredIngestState{Req: req, Start: time.Now()}
	if req == nil || strings.TrimSpace(req.FileID) == "" {
		st.Err = fmt.Errorf("missing file_id")
		return st, nil
	}

	file, err := p.fileRepo.GetByID(ctx, req.FileID)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if file == nil {
		st.Err = fmt.Errorf("source file not found: %s", req.FileID)
		return st, nil
	}
	if !source.IsStructuredFormat(file.Format) {
		st.Err = fmt.Errorf("file %s is not structured: %s", file.Id, file.Format)
		return st, nil
	}
	st.File = file
	return st, nil
}

// clearOldNode 重建前清掉该文件上一次导入的表、登记与向量，
// 消息重投不会累积重复表
func (p *StructuredIngestPipeline) clearOldNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}

	old, err := p.tableRepo.ListByFile(ctx, st.File.Id)
	if err != nil {
		st.Err = fmt.Errorf("list old tables: %w", err)
		return st, nil
	}
	for _, t := range old {
		if err := p.provisioner.DropTable(ctx, t.DatabaseName, t.Name); err != nil {
			zlog.Warn("drop stale table failed",
				zap.String("database", t.DatabaseName),
				zap.String("table", t.Name),
				zap.Error(err))
		}
	}
	if err := p.tableRepo.DeleteByFile(ctx, st.File.Id); err != nil {
		st.Err = fmt.Errorf("clear old table registry: %w", err)
		return st, nil
	}
	if err := p.vs.DeleteByFile(ctx, st.File.UserId, st.File.Id); err != nil {
		st.Err = fmt.Errorf("clear old vectors: %w", err)
		return st, nil
	}
	return st, nil
}

func (p *StructuredIngestPipeline) parseNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	stem := strings.TrimSuffix(st.File.Name, filepath.Ext(st.File.Name))
	tables, err := p.loader.Load(st.File.Path, st.File.Format, stem)
	if err != nil {
		st.Err = err
		return st, nil
	}
	if len(tables) == 0 {
		st.Err = fmt.Errorf("file %s produced no tables", st.File.Id)
		return st, nil
	}
	st.Tables = tables
	return st, nil
}

func (p *StructuredIngestPipeline) provisionNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}

	dbName := p.provisioner.DatabaseNameFor(st.File.UserId)
	if err := p.provisioner.EnsureDatabase(ctx, dbName); err != nil {
		st.Err = err
		return st, nil
	}
	st.DatabaseName = dbName

	for _, t := range st.Tables {
		if err := p.provisioner.CreateTable(ctx, dbName, t); err != nil {
			st.Err = err
			return st, nil
		}
		n, err := p.provisioner.InsertRows(ctx, dbName, t)
		if err != nil {
			st.Err = err
			return st, nil
		}
		st.RowsInserted += n
	}
	return st, nil
}

func (p *StructuredIngestPipeline) registerNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	now := time.Now()
	rows := make([]*source.SourceFileTable, 0, len(st.Tables))
	for _, t := range st.Tables {
		schemaJSON, err := json.Marshal(t.Columns)
		if err != nil {
			st.Err = err
			return st, nil
		}
		rows = append(rows, &source.SourceFileTable{
			FileId:       st.File.Id,
			UserId:       st.File.UserId,
			DatabaseName: st.DatabaseName,
			Name:         t.Name,
			SchemaJson:   string(schemaJSON),
			RowCount:     int64(len(t.Rows)),
			CreatedAt:    now,
			UpdatedAt:    now,
		})
	}
	if err := p.tableRepo.BatchCreate(ctx, rows); err != nil {
		st.Err = err
		return st, nil
	}
	return st, nil
}

func (p *StructuredIngestPipeline) summarizeNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	sum, err := p.summarizer.SummarizeTables(ctx, DescribeTables(st.Tables))
	if err != nil {
		st.Err = err
		return st, nil
	}
	st.Summary = sum
	return st, nil
}

func (p *StructuredIngestPipeline) embedNode(ctx context.Context, st *structuredIngestState, _ ...any) (*structuredIngestState, error) {
	if st.Err != nil {
		return st, nil
	}
	if strings.TrimSpace(st.Summary) == "" {
		return st, nil
	}

	vecs, err := p.embedder.EmbedStrings(ctx, []string{st.Summary})
	if err != nil {
		st.Err = err
		return st, nil
	}
	vec64 := vecs[0]
	if len(vec64) != p.vectorDim {
		st.Err = fmt.Errorf("vector dim mismatch got=%d want=%d", len(vec64), p.vectorDim)
		return st, nil
	}
	vec32 := make([]float32, len(vec64))
	for i := range vec64 {
		vec32[i] = float32(vec64[i])
	}

	_, err = p.vs.Upsert(ctx, []vectordb.UpsertItem{{
		RefID:   vectordb.FileRefID(st.File.Id),
		Vector:  vec32,
		UserID:  st.File.UserId,
		FileID:  st.File.Id,
		DocKind: vectordb.DocKindFileSummary,
	}})
	if err != nil {
		st.Err = err
		return st, nil
	}
	return st, nil
}

func (p *StructuredIngestPipeline) finalizeNode(ctx context.Context, st *structuredIngestState, _ ...any) (*StructuredIngestResult, error) {
	res := &StructuredIngestResult{Err: st.Err}
	if st.Req != nil {
		res.FileID = st.Req.FileID
	}
	res.DurationMs = time.Since(st.Start).Milliseconds()
	if st.Err != nil {
		return res, nil
	}

	if err := p.fileRepo.UpdateSummary(ctx, st.File.Id, st.Summary); err != nil {
		res.Err = err
		return res, nil
	}

	res.Tables = len(st.Tables)
	res.Rows = st.RowsInserted

	zlog.Info("structured ingest done",
		zap.String("file_id", st.File.Id),
		zap.String("user_id", st.File.UserId),
		zap.String("database", st.DatabaseName),
		zap.Int("tables", res.Tables),
		zap.Int64("rows", res.Rows),
		zap.Int64("ms", res.DurationMs))
	return res, nil
}

// DescribeTables 把表结构与示例数据拼成给模型看的文字描述
func DescribeTables(tables []*tabular.Table) string {
	var sb strings.Builder
	for _, t := range tables {
		sb.WriteString(fmt.Sprintf("表名：%s\n列定义：\n", t.Name))
		for _, c := range t.Columns {
			sb.WriteString(fmt.Sprintf("  - %s %s\n", c.Name, c.SQLType))
		}
		sampleN := len(t.Rows)
		if sampleN > 3 {
			sampleN = 3
		}
		if sampleN > 0 {
			sb.WriteString("示例数据：\n")
			for _, row := range t.Rows[:sampleN] {
				cells := make([]string, len(row))
				for i, v := range row {
					if v == nil {
						cells[i] = "NULL"
					} else {
						cells[i] = *v
					}
				}
				sb.WriteString("  " + strings.Join(cells, " | ") + "\n")
			}
		}
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
