package pipeline

import (
	"context"
	"fmt"
	"testing"

	"RAGLink/internal/gateway/embedding"
	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/internal/modules/source/infrastructure/tabular"

	"github.com/stretchr/testify/require"
)

type memTableRepo struct {
	tables []*source.SourceFileTable
	events *[]string
}

func (r *memTableRepo) BatchCreate(ctx context.Context, tables []*source.SourceFileTable) error {
	*r.events = append(*r.events, "tables.register")
	r.tables = append(r.tables, tables...)
	return nil
}

func (r *memTableRepo) ListByFile(ctx context.Context, fileID string) ([]*source.SourceFileTable, error) {
	var out []*source.SourceFileTable
	for _, t := range r.tables {
		if t.FileId == fileID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTableRepo) ListByFiles(ctx context.Context, fileIDs []string) ([]*source.SourceFileTable, error) {
	var out []*source.SourceFileTable
	for _, id := range fileIDs {
		ts, _ := r.ListByFile(ctx, id)
		out = append(out, ts...)
	}
	return out, nil
}

func (r *memTableRepo) ListByUser(ctx context.Context, userID string) ([]*source.SourceFileTable, error) {
	var out []*source.SourceFileTable
	for _, t := range r.tables {
		if t.UserId == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTableRepo) DeleteByFile(ctx context.Context, fileID string) error {
	*r.events = append(*r.events, "tables.unregister")
	kept := r.tables[:0]
	for _, t := range r.tables {
		if t.FileId != fileID {
			kept = append(kept, t)
		}
	}
	r.tables = kept
	return nil
}

type stubLoader struct {
	tables []*tabular.Table
}

func (l stubLoader) Load(path, format, nameStem string) ([]*tabular.Table, error) {
	return l.tables, nil
}

// stubProvisioner 记录建删表动作，表数据本身不落地
type stubProvisioner struct {
	events  *[]string
	dropped []string
}

func (p *stubProvisioner) DatabaseNameFor(userID string) string {
	return "raglink_user_" + userID
}

func (p *stubProvisioner) EnsureDatabase(ctx context.Context, dbName string) error { return nil }

func (p *stubProvisioner) CreateTable(ctx context.Context, dbName string, t *tabular.Table) error {
	*p.events = append(*p.events, "provision.create")
	return nil
}

func (p *stubProvisioner) InsertRows(ctx context.Context, dbName string, t *tabular.Table) (int64, error) {
	return int64(len(t.Rows)), nil
}

func (p *stubProvisioner) DropTable(ctx context.Context, dbName, table string) error {
	*p.events = append(*p.events, "provision.drop")
	p.dropped = append(p.dropped, table)
	return nil
}

type stubTableSummarizer struct{}

func (stubTableSummarizer) SummarizeTables(ctx context.Context, schemaDescription string) (string, error) {
	return fmt.Sprintf("資料描述（%d 字）", len(schemaDescription)), nil
}

func sampleTable(name string) *tabular.Table {
	sp := func(s string) *string { return &s }
	return &tabular.Table{
		Name: name,
		Columns: []tabular.Column{
			{Name: "region", SQLType: "VARCHAR(100)"},
			{Name: "total", SQLType: "BIGINT"},
		},
		Rows: [][]*string{{sp("north"), sp("10")}, {sp("south"), sp("20")}},
	}
}

func TestStructuredIngestClearsStaleTables(t *testing.T) {
	file := &source.SourceFile{
		Id:     "f-2",
		UserId: "u-1",
		Name:   "sales.csv",
		Format: source.FormatCSV,
		Path:   "/tmp/sales.csv",
		Status: source.StatusProcessing,
	}
	fileRepo := newMemFileRepo(file)
	events := &[]string{}
	tableRepo := &memTableRepo{events: events}
	// 上一次导入残留的表登记
	tableRepo.tables = []*source.SourceFileTable{{
		FileId: file.Id, UserId: file.UserId,
		DatabaseName: "raglink_user_u-1", Name: "sales_old1234",
	}}
	prov := &stubProvisioner{events: events}
	vs := newMemVectorStore(events)

	p, err := NewStructuredIngestPipeline(
		fileRepo, tableRepo,
		stubLoader{tables: []*tabular.Table{sampleTable("sales_new5678")}},
		prov, stubTableSummarizer{},
		embedding.NewMockEmbedder(8), vs, 8,
	)
	require.NoError(t, err)

	res, err := p.Execute(context.Background(), &StructuredIngestRequest{FileID: file.Id, UserID: file.UserId})
	require.NoError(t, err)
	require.Equal(t, 1, res.Tables)
	require.Equal(t, int64(2), res.Rows)

	// 旧表先删后建，登记表里只剩新表
	require.Equal(t, []string{"sales_old1234"}, prov.dropped)
	order := map[string]int{}
	for i, ev := range *events {
		if _, seen := order[ev]; !seen {
			order[ev] = i
		}
	}
	require.Less(t, order["provision.drop"], order["provision.create"])
	require.Less(t, order["tables.unregister"], order["tables.register"])
	require.Less(t, order["vectors.delete"], order["vectors.upsert"])

	require.Len(t, tableRepo.tables, 1)
	require.Equal(t, "sales_new5678", tableRepo.tables[0].Name)
	require.Contains(t, fileRepo.summaries[file.Id], "資料描述")
}
