package xlsx

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkbookHasNoTabs(t *testing.T) {
	w, err := Open(filepath.Join(t.TempDir(), "out.xlsx"))
	require.NoError(t, err)
	defer w.Close()

	tabs, err := w.ListTabs(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tabs)
}

func TestWorkbookRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out.xlsx")

	w, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, w.CreateTab(ctx, "Contestants"))
	require.NoError(t, w.CreateTab(ctx, "August"))
	require.NoError(t, w.WriteHeaderRow(ctx, "August", []string{"id", "amount"}))
	require.NoError(t, w.WriteRows(ctx, "August", [][]string{{"1", "5.00"}, {"2", "7.50"}, {"3", ""}}))
	require.NoError(t, w.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	tabs, err := reopened.ListTabs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Contestants", "August"}, tabs)

	header, err := reopened.ReadRange(ctx, "August", "A1:1")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id", "amount"}}, header)

	body, err := reopened.ReadRange(ctx, "August", "A2:Z")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "5.00"}, {"2", "7.50"}, {"3"}}, body)
}

func TestWriteRowsReplacesBody(t *testing.T) {
	ctx := context.Background()
	w, err := Open(filepath.Join(t.TempDir(), "out.xlsx"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.CreateTab(ctx, "September"))
	require.NoError(t, w.WriteHeaderRow(ctx, "September", []string{"id"}))
	require.NoError(t, w.WriteRows(ctx, "September", [][]string{{"1"}, {"2"}, {"3"}}))
	require.NoError(t, w.WriteRows(ctx, "September", [][]string{{"4"}}))

	rows, err := w.ReadRange(ctx, "September", "A1:Z")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"id"}, {"4"}}, rows)
}

func TestCreateTabTwiceFails(t *testing.T) {
	ctx := context.Background()
	w, err := Open(filepath.Join(t.TempDir(), "out.xlsx"))
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.CreateTab(ctx, "October"))
	require.NoError(t, w.CreateTab(ctx, "November"))
	assert.Error(t, w.CreateTab(ctx, "November"))
}

func TestUnknownTab(t *testing.T) {
	ctx := context.Background()
	w, err := Open(filepath.Join(t.TempDir(), "out.xlsx"))
	require.NoError(t, err)
	defer w.Close()

	_, err = w.ReadRange(ctx, "Nope", "A1:1")
	assert.Error(t, err)
	assert.Error(t, w.WriteRows(ctx, "Nope", nil))
	assert.Error(t, w.WriteHeaderRow(ctx, "Nope", []string{"id"}))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
