package tabular

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSVTypeInference(t *testing.T) {
	csv := "id,active,note\n1,true," + strings.Repeat("甲", 60) + "\n2,false,short\n"
	path := writeTemp(t, "sample.csv", csv)

	tables, err := NewLoader().Load(path, "csv", "sample")
	require.NoError(t, err)
	require.Len(t, tables, 1)

	tbl := tables[0]
	require.Len(t, tbl.Columns, 3)
	require.Equal(t, "BIGINT", tbl.Columns[0].SQLType)
	require.Equal(t, "BOOLEAN", tbl.Columns[1].SQLType)
	// 最长 60 字符，落在 ≤200 档
	require.Equal(t, "VARCHAR(500)", tbl.Columns[2].SQLType)
	require.Len(t, tbl.Rows, 2)
}

func TestLoadJSONTopLevelArray(t *testing.T) {
	path := writeTemp(t, "sample.json", `[{"name":"a","score":1},{"name":"b","score":2}]`)

	tables, err := NewLoader().Load(path, "json", "sample")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Rows, 2)
	require.Equal(t, "BIGINT", columnType(t, tables[0], "score"))
}

func TestLoadJSONObjectWithArrayField(t *testing.T) {
	path := writeTemp(t, "sample.json", `{"version":1,"items":[{"sku":"x","qty":3},{"sku":"y","qty":5}]}`)

	tables, err := NewLoader().Load(path, "json", "sample")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.True(t, strings.HasPrefix(tables[0].Name, "sample_items_"))
	require.Len(t, tables[0].Rows, 2)
}

func TestLoadXML(t *testing.T) {
	xml := `<root><row><city>台北</city><pop>250</pop></row><row><city>高雄</city><pop>120</pop></row></root>`
	path := writeTemp(t, "sample.xml", xml)

	tables, err := NewLoader().Load(path, "xml", "sample")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	require.Len(t, tables[0].Rows, 2)
	require.Equal(t, "BIGINT", columnType(t, tables[0], "pop"))
}

func TestLoadXMLFlatDocument(t *testing.T) {
	// 根节点的子元素没有子元素时，整份文件作为单笔记录
	xml := `<config><host>db.local</host><port>3306</port></config>`
	path := writeTemp(t, "config.xml", xml)

	tables, err := NewLoader().Load(path, "xml", "config")
	require.NoError(t, err)
	require.Len(t, tables, 1)

	tbl := tables[0]
	require.Len(t, tbl.Rows, 1)
	require.Equal(t, "VARCHAR(100)", columnType(t, tbl, "host"))
	require.Equal(t, "BIGINT", columnType(t, tbl, "port"))
	require.Equal(t, "db.local", *tbl.Rows[0][0])
	require.Equal(t, "3306", *tbl.Rows[0][1])
}

func columnType(t *testing.T, tbl *Table, name string) string {
	t.Helper()
	for _, c := range tbl.Columns {
		if c.Name == name {
			return c.SQLType
		}
	}
	t.Fatalf("column %s not found", name)
	return ""
}

func TestTruncateCell(t *testing.T) {
	long := strings.Repeat("字", 10001)
	out := TruncateCell(long)
	require.Equal(t, 10000, len([]rune(out)))
	require.True(t, strings.HasSuffix(out, "..."))

	short := "hello"
	require.Equal(t, short, TruncateCell(short))
}

func TestInferSQLType(t *testing.T) {
	sp := func(s string) *string { return &s }

	require.Equal(t, "BIGINT", InferSQLType([]*string{sp("1"), sp("-42"), nil}))
	require.Equal(t, "DOUBLE", InferSQLType([]*string{sp("1.5"), sp("2")}))
	require.Equal(t, "BOOLEAN", InferSQLType([]*string{sp("true"), sp("false")}))
	require.Equal(t, "TIMESTAMP", InferSQLType([]*string{sp("2024-01-02"), sp("2024-01-02 10:00:00")}))
	require.Equal(t, "VARCHAR(100)", InferSQLType([]*string{sp("abc")}))
	require.Equal(t, "VARCHAR(100)", InferSQLType([]*string{nil, nil}))
	require.Equal(t, "VARCHAR(2000)", InferSQLType([]*string{sp(strings.Repeat("x", 600))}))
	require.Equal(t, "TEXT", InferSQLType([]*string{sp(strings.Repeat("x", 1500))}))
}

func TestIsValidIdentifier(t *testing.T) {
	require.True(t, IsValidIdentifier("sales_2024"))
	require.True(t, IsValidIdentifier("_tmp"))
	require.False(t, IsValidIdentifier("1abc"))
	require.False(t, IsValidIdentifier("drop table"))
	require.False(t, IsValidIdentifier(""))
	require.False(t, IsValidIdentifier(strings.Repeat("a", 65)))
}

func TestSanitizeIdentifier(t *testing.T) {
	require.Equal(t, "sales_report", SanitizeIdentifier("Sales Report"))
	require.Equal(t, "c_2024data", SanitizeIdentifier("2024data"))
	out := SanitizeIdentifier("訂單明細")
	require.True(t, IsValidIdentifier(out))
}

func TestExcelColumnNames(t *testing.T) {
	require.Equal(t, []string{"a", "b", "c"}, ExcelColumnNames(3))

	names := ExcelColumnNames(29)
	require.Len(t, names, 29)
	require.Equal(t, "z", names[25])
	require.Equal(t, "aa", names[26])
	require.Equal(t, "ab", names[27])
	require.Equal(t, "ac", names[28])
}

func TestSanitizeColumnNamesBlankHeader(t *testing.T) {
	// 表头整格缺失或不可用时退到 Excel 风格占位名
	out := sanitizeColumnNames([]string{"id", "", "##", "name"})
	require.Equal(t, []string{"id", "b", "c", "name"}, out)
}

func TestNewTableNameUnique(t *testing.T) {
	a := NewTableName("sales")
	b := NewTableName("sales")
	require.NotEqual(t, a, b)
	require.True(t, strings.HasPrefix(a, "sales_"))
	require.True(t, IsValidIdentifier(a))
}
