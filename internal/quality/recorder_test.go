package quality

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiwarehouse/pkg/contracts/domain"
)

type memoryWriter struct {
	calls  [][]domain.DQIssue
	failOn int
}

func (w *memoryWriter) InsertIssues(_ context.Context, issues []domain.DQIssue) error {
	if w.failOn > 0 && len(w.calls)+1 == w.failOn {
		return errors.New("disk full")
	}
	w.calls = append(w.calls, issues)
	return nil
}

func TestRecorderCommitsRowAtomically(t *testing.T) {
	ctx := context.Background()
	writer := &memoryWriter{}
	rec := NewRecorder(writer, 42, domain.DatasetOperations, nil, nil)

	row := NewRow(3)
	row.Add(domain.IssueInvalidValue, "revenue must be numeric", map[string]interface{}{"field": "revenue"})
	row.Add(domain.IssueMissingValue, "no metrics to load", nil)
	require.True(t, row.HasIssues())

	require.NoError(t, rec.Commit(ctx, row))
	require.Len(t, writer.calls, 1, "one write per row")
	require.Len(t, writer.calls[0], 2)

	first := writer.calls[0][0]
	assert.Equal(t, int64(42), first.BatchID)
	assert.Equal(t, domain.DatasetOperations, first.Dataset)
	assert.Equal(t, 3, *first.RowNumber)

	assert.False(t, row.HasIssues(), "row is emptied after commit")
	assert.Equal(t, 2, rec.Total())
	assert.Equal(t, map[domain.IssueType]int{
		domain.IssueInvalidValue: 1,
		domain.IssueMissingValue: 1,
	}, rec.Counts())
}

func TestRecorderSkipsCleanRows(t *testing.T) {
	writer := &memoryWriter{}
	rec := NewRecorder(writer, 1, domain.DatasetKPI, nil, nil)

	require.NoError(t, rec.Commit(context.Background(), NewRow(1)))
	require.NoError(t, rec.Commit(context.Background(), nil))
	assert.Empty(t, writer.calls)
	assert.Zero(t, rec.Total())
}

func TestRecorderWriteFailure(t *testing.T) {
	writer := &memoryWriter{failOn: 1}
	rec := NewRecorder(writer, 1, domain.DatasetKPI, nil, nil)

	row := NewRow(9)
	row.Add(domain.IssueAnomaly, "value exceeds threshold", nil)

	err := rec.Commit(context.Background(), row)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 9")
	assert.Zero(t, rec.Total(), "failed writes are not counted")
}
