package migrations

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	stmts []string
	fail  string
}

func (c *recordingConn) Exec(_ context.Context, query string, _ ...any) error {
	if c.fail != "" && strings.Contains(query, c.fail) {
		return errors.New("boom")
	}
	c.stmts = append(c.stmts, query)
	return nil
}

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (x Int32);

-- second
CREATE TABLE b (y Int32)
;
`
	assert.Equal(t, []string{"CREATE TABLE a (x Int32)", "CREATE TABLE b (y Int32)"}, SplitStatements(in))
	assert.Empty(t, SplitStatements("-- only a comment\n"))
}

func TestEmbeddedFilesAreOrdered(t *testing.T) {
	files, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "001_market_data.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func TestRunClickhouse(t *testing.T) {
	conn := &recordingConn{}
	files, err := RunClickhouse(context.Background(), conn)
	require.NoError(t, err)
	assert.NotEmpty(t, files)
	require.NotEmpty(t, conn.stmts)
	assert.Contains(t, conn.stmts[0], "ReplacingMergeTree")

	_, err = RunClickhouse(context.Background(), &recordingConn{fail: "daily_bars"})
	assert.Error(t, err)
}
