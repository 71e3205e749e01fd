package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"RAGLink/internal/config"
	"RAGLink/internal/modules/source/infrastructure/tabular"
	"RAGLink/pkg/zlog"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 500

var ErrNotReadOnly = errors.New("only read-only statements are allowed")

// Provisioner 管理用户专属数据库：建库、建表、导入数据、执行只读查询。
// 连接按库名缓存复用。
type Provisioner struct {
	cfg config.SourceDBConfig

	mu    sync.Mutex
	conns map[string]*gorm.DB
}

func NewProvisioner(cfg config.SourceDBConfig) *Provisioner {
	return &Provisioner{cfg: cfg, conns: make(map[string]*gorm.DB)}
}

// DatabaseNameFor 计算用户专属库名：<前缀>_<规整后的用户标识>。
// 不复用表名的 48 字符截断，库名允许到 MySQL 上限 64，避免 UUID 被截断撞名。
func (p *Provisioner) DatabaseNameFor(userID string) string {
	prefix := strings.TrimSpace(p.cfg.DBPrefix)
	if prefix == "" {
		prefix = "raglink_user"
	}
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(prefix+"_"+userID))
	if len(name) > 64 {
		name = name[:64]
	}
	return name
}

// EnsureDatabase 幂等建库
func (p *Provisioner) EnsureDatabase(ctx context.Context, dbName string) error {
	if !tabular.IsValidIdentifier(dbName) {
		return fmt.Errorf("invalid database name: %q", dbName)
	}
	server, err := p.serverConn()
	if err != nil {
		return err
	}
	return server.WithContext(ctx).Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4", dbName)).Error
}

// CreateTable 按推断出的列类型建表，并附加自增主键列
func (p *Provisioner) CreateTable(ctx context.Context, dbName string, t *tabular.Table) error {
	if !tabular.IsValidIdentifier(t.Name) {
		return fmt.Errorf("invalid table name: %q", t.Name)
	}
	cols := make([]string, 0, len(t.Columns)+1)
	cols = append(cols, "`_row_id` BIGINT AUTO_INCREMENT PRIMARY KEY")
	for _, c := range t.Columns {
		if !tabular.IsValidIdentifier(c.Name) {
			return fmt.Errorf("invalid column name: %q", c.Name)
		}
		cols = append(cols, fmt.Sprintf("`%s` %s NULL", c.Name, c.SQLType))
	}

	db, err := p.conn(dbName)
	if err != nil {
		return err
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s) CHARACTER SET utf8mb4", t.Name, strings.Join(cols, ", "))
	return db.WithContext(ctx).Exec(ddl).Error
}

// InsertRows 批量写入数据。整批失败时退化为逐行写入，
// 列数对不上的行跳过并记录，不中断整体导入。
func (p *Provisioner) InsertRows(ctx context.Context, dbName string, t *tabular.Table) (int64, error) {
	db, err := p.conn(dbName)
	if err != nil {
		return 0, err
	}

	colNames := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		colNames[i] = fmt.Sprintf("`%s`", c.Name)
	}
	colList := strings.Join(colNames, ", ")
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?,", len(t.Columns)), ",") + ")"

	var inserted int64
	for lo := 0; lo < len(t.Rows); lo += insertBatchSize {
		hi := lo + insertBatchSize
		if hi > len(t.Rows) {
			hi = len(t.Rows)
		}
		batch := t.Rows[lo:hi]

		valid := make([][]*string, 0, len(batch))
		for i, row := range batch {
			if len(row) != len(t.Columns) {
				zlog.Warn("skip row with column count mismatch",
					zap.String("table", t.Name),
					zap.Int("row", lo+i),
					zap.Int("got", len(row)),
					zap.Int("want", len(t.Columns)))
				continue
			}
			valid = append(valid, row)
		}
		if len(valid) == 0 {
			continue
		}

		sqlText, args := buildInsert(t.Name, colList, placeholder, valid)
		if err := db.WithContext(ctx).Exec(sqlText, args...).Error; err == nil {
			inserted += int64(len(valid))
			continue
		}

		// 整批失败，逐行兜底
		for _, row := range valid {
			rowSQL, rowArgs := buildInsert(t.Name, colList, placeholder, [][]*string{row})
			if rowErr := db.WithContext(ctx).Exec(rowSQL, rowArgs...).Error; rowErr != nil {
				zlog.Warn("skip unimportable row", zap.String("table", t.Name), zap.Error(rowErr))
				continue
			}
			inserted++
		}
	}
	return inserted, nil
}

func buildInsert(table, colList, placeholder string, rows [][]*string) (string, []any) {
	placeholders := make([]string, len(rows))
	args := make([]any, 0, len(rows)*8)
	for i, row := range rows {
		placeholders[i] = placeholder
		for _, v := range row {
			if v == nil {
				args = append(args, nil)
			} else {
				args = append(args, *v)
			}
		}
	}
	sqlText := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s", table, colList, strings.Join(placeholders, ", "))
	return sqlText, args
}

// DropTable 删除导入表（文件删除时调用）
func (p *Provisioner) DropTable(ctx context.Context, dbName, table string) error {
	if !tabular.IsValidIdentifier(dbName) || !tabular.IsValidIdentifier(table) {
		return fmt.Errorf("invalid identifier: %s.%s", dbName, table)
	}
	db, err := p.conn(dbName)
	if err != nil {
		return err
	}
	return db.WithContext(ctx).Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", table)).Error
}

// Query 执行只读查询，返回列名与行数据
func (p *Provisioner) Query(ctx context.Context, dbName, sqlText string) ([]string, [][]any, error) {
	if !IsReadOnlyStatement(sqlText) {
		return nil, nil, ErrNotReadOnly
	}
	db, err := p.conn(dbName)
	if err != nil {
		return nil, nil, err
	}

	sqlRows, err := db.WithContext(ctx).Raw(sqlText).Rows()
	if err != nil {
		return nil, nil, err
	}
	defer sqlRows.Close()

	cols, err := sqlRows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var rows [][]any
	for sqlRows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := sqlRows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]any, len(cols))
		for i, v := range raw {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return cols, rows, sqlRows.Err()
}

// IsReadOnlyStatement 只放行查询类语句
func IsReadOnlyStatement(sqlText string) bool {
	s := strings.TrimSpace(sqlText)
	s = strings.TrimSuffix(s, ";")
	if s == "" || strings.Contains(s, ";") {
		return false
	}
	first := strings.ToUpper(strings.Fields(s)[0])
	switch first {
	case "SELECT", "WITH", "SHOW", "DESC", "DESCRIBE", "EXPLAIN":
		return true
	}
	return false
}

func (p *Provisioner) serverConn() (*gorm.DB, error) {
	return p.connDSN("")
}

func (p *Provisioner) conn(dbName string) (*gorm.DB, error) {
	if !tabular.IsValidIdentifier(dbName) {
		return nil, fmt.Errorf("invalid database name: %q", dbName)
	}
	return p.connDSN(dbName)
}

func (p *Provisioner) connDSN(dbName string) (*gorm.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := dbName
	if db, ok := p.conns[key]; ok {
		return db, nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		p.cfg.User, p.cfg.Password, p.cfg.Host, p.cfg.Port, dbName)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("connect %q: %w", dbName, err)
	}
	p.conns[key] = db
	return db, nil
}
