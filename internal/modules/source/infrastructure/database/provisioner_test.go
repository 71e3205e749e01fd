package database

import (
	"testing"

	"RAGLink/internal/config"
	"RAGLink/internal/modules/source/infrastructure/tabular"

	"github.com/stretchr/testify/require"
)

func TestIsReadOnlyStatement(t *testing.T) {
	allowed := []string{
		"SELECT * FROM t",
		"  select id from t limit 1;",
		"WITH x AS (SELECT 1) SELECT * FROM x",
		"SHOW TABLES",
		"DESC sales",
		"DESCRIBE sales",
		"EXPLAIN SELECT 1",
	}
	for _, s := range allowed {
		require.True(t, IsReadOnlyStatement(s), "should allow: %s", s)
	}

	denied := []string{
		"",
		"   ",
		"INSERT INTO t VALUES (1)",
		"UPDATE t SET a = 1",
		"DELETE FROM t",
		"DROP TABLE t",
		"TRUNCATE t",
		// 多语句注入
		"SELECT 1; DROP TABLE t",
	}
	for _, s := range denied {
		require.False(t, IsReadOnlyStatement(s), "should deny: %s", s)
	}
}

func TestDatabaseNameFor(t *testing.T) {
	p := NewProvisioner(config.SourceDBConfig{DBPrefix: "raglink_user"})
	name := p.DatabaseNameFor("3f2c9d1e-0a4b-4c8d-9e7f-112233445566")
	require.True(t, tabular.IsValidIdentifier(name))
	require.Equal(t, "raglink_user_3f2c9d1e_0a4b_4c8d_9e7f_112233445566", name)

	// 未配置前缀时退化为默认前缀
	p = NewProvisioner(config.SourceDBConfig{})
	require.Equal(t, "raglink_user_u1", p.DatabaseNameFor("u1"))
}

func TestBuildInsert(t *testing.T) {
	v1, v3 := "a", "c"
	sqlText, args := buildInsert("t1", "`c1`, `c2`", "(?,?)", [][]*string{
		{&v1, nil},
		{&v3, &v3},
	})
	require.Equal(t, "INSERT INTO `t1` (`c1`, `c2`) VALUES (?,?), (?,?)", sqlText)
	require.Equal(t, []any{"a", nil, "c", "c"}, args)
}
