package lazysql

import (
	"database/sql"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenArgs_MixedKinds(t *testing.T) {
	args, err := flattenArgs([]Param{
		Null(),
		Some(5),
		In(1, 2),
		Value("x"),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, 5, 1, 2, "x"}, args)
}

func TestFlattenArgs_Option(t *testing.T) {
	n := 7
	args, err := flattenArgs([]Param{Opt(&n), Opt[int](nil), None()})
	require.NoError(t, err)
	assert.Equal(t, []any{7, nil, nil}, args)
}

func TestFlattenArgs_Either(t *testing.T) {
	args, err := flattenArgs([]Param{Left("l"), Right(2)})
	require.NoError(t, err)
	assert.Equal(t, []any{"l", 2}, args)
}

func TestFlattenArgs_Char(t *testing.T) {
	args, err := flattenArgs([]Param{Char('A'), Char('中')})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "中"}, args)
}

func TestFlattenArgs_Streams(t *testing.T) {
	args, err := flattenArgs([]Param{
		Blob(strings.NewReader("\x00\x01\x02")),
		Clob(strings.NewReader("hello")),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2}, args[0])
	assert.Equal(t, "hello", args[1])
}

func TestFlattenArgs_BigNumerics(t *testing.T) {
	i := new(big.Int)
	i.SetString("123456789012345678901234567890", 10)
	f := big.NewFloat(2.5)

	args, err := flattenArgs([]Param{Value(i), Value(f)})
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", args[0],
		"exact numerics bind as their decimal string form")
	assert.Equal(t, "2.5", args[1])
}

func TestFlattenArgs_NilBigNumerics(t *testing.T) {
	args, err := flattenArgs([]Param{Value((*big.Int)(nil)), Value((*big.Float)(nil))})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, nil}, args)
}

func TestFlattenArgs_OutArg(t *testing.T) {
	var dest int64
	args, err := flattenArgs([]Param{OutArg("total", &dest)})
	require.NoError(t, err)
	require.Len(t, args, 1)
	out, ok := args[0].(sql.Out)
	require.True(t, ok)
	assert.Equal(t, &dest, out.Dest)
}

func TestFlattenArgs_NestedGroup(t *testing.T) {
	args, err := flattenArgs([]Param{
		Group(Null(), In(1, 2), Value("z")),
	})
	require.NoError(t, err)
	assert.Equal(t, []any{nil, 1, 2, "z"}, args)
}

func TestSlotCount(t *testing.T) {
	assert.Equal(t, 1, slotCount(Value(1)))
	assert.Equal(t, 1, slotCount(Null()))
	assert.Equal(t, 3, slotCount(In(1, 2, 3)))
	assert.Equal(t, 0, slotCount(In()))
	assert.Equal(t, 4, slotCount(Group(In(1, 2), Null(), Value("x"))))
}
