package lazysql

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func logPool(t *testing.T) (*Pool, sqlmock.Sqlmock, *bytes.Buffer) {
	t.Helper()
	pool, mock := mockDB(t)
	buf := &bytes.Buffer{}
	pool.EnableLogging(true)
	pool.SetLogger(slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return pool, mock, buf
}

func lastLogRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestLogQuery_SuccessFields(t *testing.T) {
	pool, mock, buf := logPool(t)
	mock.ExpectExec("UPDATE t SET a = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := Update(context.Background(), pool, "UPDATE t SET a = ?", Value(1))
	require.NoError(t, err)

	rec := lastLogRecord(t, buf)
	assert.Equal(t, "database query executed", rec["msg"])
	assert.Equal(t, "update", rec["operation"])
	assert.Equal(t, "UPDATE t SET a = ?", rec["query"])
	assert.Equal(t, "success", rec["status"])
	assert.Equal(t, float64(1), rec["arg_count"])
	assert.Contains(t, rec, "duration_ms")
}

func TestLogQuery_ErrorFields(t *testing.T) {
	pool, mock, buf := logPool(t)
	mock.ExpectExec("UPDATE t SET a = ?").
		WithArgs(1).
		WillReturnError(assert.AnError)

	_, err := Update(context.Background(), pool, "UPDATE t SET a = ?", Value(1))
	require.Error(t, err)

	rec := lastLogRecord(t, buf)
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "error", rec["status"])
	assert.Equal(t, "unknown", rec["error_class"])
	assert.Contains(t, rec, "error")
}

func TestLogQuery_SlowQueryPromotedToWarn(t *testing.T) {
	pool, mock, buf := logPool(t)
	pool.SetSlowQueryThreshold(time.Nanosecond)
	mock.ExpectExec("UPDATE t SET a = 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := Update(context.Background(), pool, "UPDATE t SET a = 1")
	require.NoError(t, err)

	rec := lastLogRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "slow query detected", rec["msg"])
}

func TestLogQuery_DisabledByDefault(t *testing.T) {
	pool, mock := mockDB(t)
	buf := &bytes.Buffer{}
	pool.SetLogger(slog.New(slog.NewJSONHandler(buf, nil)))
	mock.ExpectExec("UPDATE t SET a = 1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := Update(context.Background(), pool, "UPDATE t SET a = 1")
	require.NoError(t, err)
	assert.Zero(t, buf.Len(), "nothing is logged until EnableLogging")
}

func TestLogQuery_ParamMismatchClass(t *testing.T) {
	pool, _, buf := logPool(t)

	_, err := Update(context.Background(), pool, "UPDATE t SET a = ?", Value(1), Value(2))
	require.Error(t, err)

	rec := lastLogRecord(t, buf)
	assert.Equal(t, "param_mismatch", rec["error_class"])
}
