package tabular

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"RAGLink/internal/modules/source/domain/source"
	"RAGLink/pkg/util"
)

// 单元格长度上限，超出截断为前 9997 字符加省略号
const maxCellLen = 10000

// Column 推断出的列定义
type Column struct {
	Name    string `json:"name"`
	SQLType string `json:"sqlType"`
}

// Table 从结构化文件解析出的一张表。
// Rows 中 nil 表示 NULL，非 nil 为原始字符串值。
type Table struct {
	Name    string
	Columns []Column
	Rows    [][]*string
}

// Loader 把 CSV/JSON/XML 文件解析为带类型推断的表结构
type Loader struct{}

func NewLoader() *Loader { return &Loader{} }

func (l *Loader) Load(path, format, nameStem string) ([]*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open structured file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(format) {
	case source.FormatCSV:
		t, err := l.loadCSV(f, nameStem)
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	case source.FormatJSON:
		return l.loadJSON(f, nameStem)
	case source.FormatXML:
		t, err := l.loadXML(f, nameStem)
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	default:
		return nil, fmt.Errorf("unsupported structured format: %s", format)
	}
}

func (l *Loader) loadCSV(r io.Reader, nameStem string) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv file is empty")
	}

	header := records[0]
	colNames := sanitizeColumnNames(header)

	rows := make([][]*string, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make([]*string, len(colNames))
		for i := range colNames {
			if i < len(rec) {
				row[i] = cellValue(rec[i])
			}
		}
		rows = append(rows, row)
	}

	return buildTable(NewTableName(nameStem), colNames, rows), nil
}

func (l *Loader) loadJSON(r io.Reader, nameStem string) ([]*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var top any
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	switch v := top.(type) {
	case []any:
		t, err := tableFromObjects(NewTableName(nameStem), v)
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	case map[string]any:
		// 对象里每个「对象数组」字段各成一张表；没有数组字段时整个对象作为单行表
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tables := make([]*Table, 0, 1)
		for _, k := range keys {
			arr, ok := v[k].([]any)
			if !ok || len(arr) == 0 {
				continue
			}
			if _, isObj := arr[0].(map[string]any); !isObj {
				continue
			}
			t, err := tableFromObjects(NewTableName(nameStem+"_"+k), arr)
			if err != nil {
				return nil, err
			}
			tables = append(tables, t)
		}
		if len(tables) > 0 {
			return tables, nil
		}

		t, err := tableFromObjects(NewTableName(nameStem), []any{top})
		if err != nil {
			return nil, err
		}
		return []*Table{t}, nil
	default:
		return nil, fmt.Errorf("json top-level must be an array or object")
	}
}

func tableFromObjects(tableName string, objects []any) (*Table, error) {
	// 列顺序取各对象键的首次出现顺序
	colOrder := make([]string, 0, 8)
	seen := make(map[string]bool, 8)
	for _, o := range objects {
		obj, ok := o.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("json rows must be objects")
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				colOrder = append(colOrder, k)
			}
		}
	}
	if len(colOrder) == 0 {
		return nil, fmt.Errorf("json contains no columns")
	}

	colNames := sanitizeColumnNames(colOrder)

	rows := make([][]*string, 0, len(objects))
	for _, o := range objects {
		obj := o.(map[string]any)
		row := make([]*string, len(colOrder))
		for i, k := range colOrder {
			raw, ok := obj[k]
			if !ok || raw == nil {
				continue
			}
			row[i] = cellValue(scalarToString(raw))
		}
		rows = append(rows, row)
	}

	return buildTable(tableName, colNames, rows), nil
}

func scalarToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		// 嵌套对象/数组序列化为 JSON 字符串存储
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}

type xmlRow struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Fields  []xmlField `xml:",any"`
	Value   string     `xml:",chardata"`
}

type xmlField struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

func (l *Loader) loadXML(r io.Reader, nameStem string) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var doc struct {
		XMLName xml.Name
		Rows    []xmlRow `xml:",any"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse xml: %w", err)
	}
	if len(doc.Rows) == 0 {
		return nil, fmt.Errorf("xml contains no row elements")
	}

	// 根节点的每个子元素是一行，行下子元素与属性是列
	colOrder := make([]string, 0, 8)
	seen := make(map[string]bool, 8)
	addCol := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			colOrder = append(colOrder, name)
		}
	}
	for _, row := range doc.Rows {
		for _, a := range row.Attrs {
			addCol(a.Name.Local)
		}
		for _, f := range row.Fields {
			addCol(f.XMLName.Local)
		}
	}
	if len(colOrder) == 0 {
		// 扁平 XML：根节点的子元素本身没有子元素，此时整份文件视为单笔记录，
		// 根的每个子元素作为一列
		return l.loadFlatXML(doc.Rows, nameStem)
	}

	colIndex := make(map[string]int, len(colOrder))
	for i, name := range colOrder {
		colIndex[name] = i
	}

	rows := make([][]*string, 0, len(doc.Rows))
	for _, xr := range doc.Rows {
		row := make([]*string, len(colOrder))
		for _, a := range xr.Attrs {
			if idx, ok := colIndex[a.Name.Local]; ok {
				row[idx] = cellValue(a.Value)
			}
		}
		for _, f := range xr.Fields {
			if idx, ok := colIndex[f.XMLName.Local]; ok {
				row[idx] = cellValue(strings.TrimSpace(f.Value))
			}
		}
		rows = append(rows, row)
	}

	return buildTable(NewTableName(nameStem), sanitizeColumnNames(colOrder), rows), nil
}

// loadFlatXML 把根节点的直接子元素当作一笔记录：子元素标签为列名，文本为值。
func (l *Loader) loadFlatXML(children []xmlRow, nameStem string) (*Table, error) {
	colOrder := make([]string, 0, len(children))
	values := make(map[string]*string, len(children))
	for _, c := range children {
		name := c.XMLName.Local
		if name == "" {
			continue
		}
		if _, ok := values[name]; !ok {
			colOrder = append(colOrder, name)
		}
		values[name] = cellValue(strings.TrimSpace(c.Value))
	}
	if len(colOrder) == 0 {
		return nil, fmt.Errorf("xml contains no columns")
	}

	row := make([]*string, len(colOrder))
	for i, name := range colOrder {
		row[i] = values[name]
	}
	return buildTable(NewTableName(nameStem), sanitizeColumnNames(colOrder), [][]*string{row}), nil
}

func buildTable(name string, colNames []string, rows [][]*string) *Table {
	cols := make([]Column, len(colNames))
	for i, cn := range colNames {
		values := make([]*string, 0, len(rows))
		for _, row := range rows {
			if i < len(row) {
				values = append(values, row[i])
			}
		}
		cols[i] = Column{Name: cn, SQLType: InferSQLType(values)}
	}
	return &Table{Name: name, Columns: cols, Rows: rows}
}

// cellValue 规整单元格：空串视为 NULL，超长截断
func cellValue(s string) *string {
	if s == "" {
		return nil
	}
	s = TruncateCell(s)
	return &s
}

// TruncateCell 把超过长度上限的值截断为前 9997 字符加 "..."
func TruncateCell(s string) string {
	runes := []rune(s)
	if len(runes) <= maxCellLen {
		return s
	}
	return string(runes[:maxCellLen-3]) + "..."
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// InferSQLType 按整列值推断 MySQL 列类型。
// 优先级：BIGINT > DOUBLE > BOOLEAN > TIMESTAMP > VARCHAR 梯度 > TEXT。
// NULL 值不参与判定；全空列按最小档 VARCHAR(100) 处理。
func InferSQLType(values []*string) string {
	allInt, allFloat, allBool, allTime := true, true, true, true
	maxLen := 0
	nonEmpty := 0

	for _, v := range values {
		if v == nil {
			continue
		}
		s := strings.TrimSpace(*v)
		if s == "" {
			continue
		}
		nonEmpty++

		if n := len([]rune(s)); n > maxLen {
			maxLen = n
		}

		if allInt {
			if _, err := strconv.ParseInt(s, 10, 64); err != nil {
				allInt = false
			}
		}
		if allFloat {
			if _, err := strconv.ParseFloat(s, 64); err != nil {
				allFloat = false
			}
		}
		if allBool && !isBoolLiteral(s) {
			allBool = false
		}
		if allTime && !isDatetime(s) {
			allTime = false
		}
	}

	if nonEmpty == 0 {
		return "VARCHAR(100)"
	}
	if allInt {
		return "BIGINT"
	}
	if allFloat {
		return "DOUBLE"
	}
	if allBool {
		return "BOOLEAN"
	}
	if allTime {
		return "TIMESTAMP"
	}

	switch {
	case maxLen <= 50:
		return "VARCHAR(100)"
	case maxLen <= 200:
		return "VARCHAR(500)"
	case maxLen <= 1000:
		return "VARCHAR(2000)"
	default:
		return "TEXT"
	}
}

func isBoolLiteral(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false":
		return true
	}
	return false
}

func isDatetime(s string) bool {
	for _, layout := range datetimeLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier 校验 SQL 标识符（库名/表名/列名）
func IsValidIdentifier(name string) bool {
	return name != "" && len(name) <= 64 && identifierPattern.MatchString(name)
}

func isIdentRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}

// SanitizeIdentifier 把任意名字规整为合法标识符：小写、非法字符换下划线、数字开头加前缀
func SanitizeIdentifier(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	out := sb.String()
	out = strings.Trim(out, "_")
	if out == "" {
		out = "col"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "c_" + out
	}
	if len(out) > 48 {
		out = out[:48]
	}
	return out
}

func sanitizeColumnNames(names []string) []string {
	placeholders := ExcelColumnNames(len(names))
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, n := range names {
		base := SanitizeIdentifier(n)
		if !strings.ContainsFunc(strings.ToLower(n), isIdentRune) {
			// 表头缺失或整格不可用时用 Excel 风格占位列名
			base = placeholders[i]
		}
		name := base
		for k := 2; used[name]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// ExcelColumnNames 生成 n 个 Excel 风格列名：a..z，超过 26 个后接 aa、ab…
func ExcelColumnNames(n int) []string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	out := make([]string, 0, n)
	for i := 0; i < n && i < 26; i++ {
		out = append(out, string(letters[i]))
	}
	for i := 0; len(out) < n; i++ {
		out = append(out, string(letters[i/26])+string(letters[i%26]))
	}
	return out
}

// NewTableName 生成带短随机后缀的表名，避免同名文件重复导入冲突
func NewTableName(stem string) string {
	return SanitizeIdentifier(stem) + "_" + util.GenerateShortUUID()[:8]
}
