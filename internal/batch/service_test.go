package batch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiwarehouse/internal/cleansing"
	"kpiwarehouse/internal/kpi"
	"kpiwarehouse/internal/shared/testutil"
	"kpiwarehouse/internal/warehouse"
	"kpiwarehouse/pkg/contracts/domain"
)

var newTestStore = testutil.NewTestStore

func newService(store Store, opts ...Option) *Service {
	return newServiceWithLogger(store, testutil.DiscardLogger(), opts...)
}

func newServiceWithLogger(store Store, logger *slog.Logger, opts ...Option) *Service {
	cleanser := cleansing.NewCleanser(cleansing.NewThresholds(1_000_000, nil), logger)
	return NewService(store, cleanser, logger, opts...)
}

func stageBatch(t *testing.T, store *warehouse.Store, dataset domain.Dataset, payloads ...string) int64 {
	t.Helper()
	return testutil.StageBatch(t, store, dataset, StagingTables[dataset], payloads...)
}

type fakeCalculator struct {
	calls atomic.Int32
	err   error
}

func (c *fakeCalculator) Calculate(_ context.Context, batchID int64, _ []int64) (*kpi.Result, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &kpi.Result{BatchID: batchID}, nil
}

func TestRunOperationsBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := stageBatch(t, store, domain.DatasetOperations,
		`{"factory_code":"F1","date":"2024-01-05","revenue":100,"cost":40}`,
		`{"factory_code":"F1","date":"2024-01-20","revenue":120}`,
		`{"factory_code":"F2","date":"2024-01-05","revenue":2000000}`,
		`{"factory_code":"F3","date":"2024-02-01","revenue":"abc"}`,
		`{"factory_code":"F4","date":"2024-02-01","output_qty":12}`,
		`not json`,
	)

	result, err := newService(store).Run(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, id, result.BatchID)
	assert.Equal(t, domain.DatasetOperations, result.Dataset)
	assert.Equal(t, domain.BatchStatusCompleted, result.Status)
	assert.Equal(t, 2, result.LoadedRows)
	assert.Equal(t, 5, result.DQIssues)

	batch, err := store.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
	assert.Equal(t, "Loaded 2 rows with 5 dq issues", batch.Message)
	assert.Equal(t, 2, *batch.ProcessedRows)
	assert.Equal(t, 5, *batch.DQErrorCount)
	assert.NotNil(t, batch.ProcessingMs)
	assert.NotNil(t, batch.CompletedAt)

	issues, err := store.ListIssues(ctx, id, "")
	require.NoError(t, err)
	types := make([]domain.IssueType, len(issues))
	for i, issue := range issues {
		types[i] = issue.IssueType
		assert.Equal(t, domain.DatasetOperations, issue.Dataset)
	}
	assert.Equal(t, []domain.IssueType{
		domain.IssueDuplicateKey,
		domain.IssueAnomaly,
		domain.IssueInvalidValue,
		domain.IssueMissingValue,
		domain.IssueInvalidJSON,
	}, types)

	facts, err := store.FactoryMonthlyFacts(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}

func TestRunKPIBatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.PutEmployeeAlias(ctx, "emp-001", "E1"))

	id := stageBatch(t, store, domain.DatasetKPI,
		`{"employee_id":"emp-001","indicator":"OEE","value":0.8,"target":0.9,"date":"2024-03-01"}`,
		`{"employee_id":"E1","indicator":"oee","value":0.7,"date":"2024-03-15"}`,
		`{"employee_id":"E2","indicator":"scrap","value":"n/a","date":"2024-03-01"}`,
	)

	calc := &fakeCalculator{}
	result, err := newService(store, WithAutoCalculate(calc)).Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LoadedRows)
	assert.Equal(t, 2, result.DQIssues)
	assert.Equal(t, int32(1), calc.calls.Load())

	facts, err := store.EmployeeMonthlyFacts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 0.8, *facts[0].Values["oee"])
}

func TestRunFatalErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("not found", func(t *testing.T) {
		store := newTestStore(t)
		_, err := newService(store).Run(ctx, 999)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.Equal(t, ErrorTypeNotFound, GetErrorType(err))

		var n int
		require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM upload_batches`).Scan(&n))
		assert.Zero(t, n)
	})

	t.Run("unsupported dataset", func(t *testing.T) {
		store := newTestStore(t)
		id := stageBatch(t, store, domain.Dataset("sales"))

		_, err := newService(store).Run(ctx, id)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnsupportedDataset))
		assert.False(t, errors.Is(err, ErrNotFound))

		batch, err := store.GetBatch(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.BatchStatusFailed, batch.Status)
		assert.Equal(t, `unsupported dataset "sales"`, batch.Message)
		assert.Nil(t, batch.ProcessedRows)
	})
}

type failingStore struct {
	*warehouse.Store
	loadErr error
	gate    chan struct{}
	gets    atomic.Int32
}

func (s *failingStore) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	s.gets.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.Store.GetBatch(ctx, id)
}

func (s *failingStore) LoadFactKpi(ctx context.Context, batchID int64, records []domain.FactKpiRecord) error {
	if s.loadErr != nil {
		return s.loadErr
	}
	return s.Store.LoadFactKpi(ctx, batchID, records)
}

func TestRunExecutionFailure(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	id := stageBatch(t, base, domain.DatasetKPI,
		`{"employee_id":"E1","indicator":"oee","value":1,"date":"2024-01-01"}`,
	)

	store := &failingStore{Store: base, loadErr: errors.New("disk full")}
	calc := &fakeCalculator{}
	_, err := newService(store, WithAutoCalculate(calc)).Run(ctx, id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExecution))
	assert.ErrorContains(t, err, "disk full")
	assert.Zero(t, calc.calls.Load())

	batch, err := base.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusFailed, batch.Status)
	assert.Equal(t, "disk full", batch.Message)
}

func TestAutoCalculateFailureKeepsBatchCompleted(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	id := stageBatch(t, store, domain.DatasetOperations,
		`{"factory_code":"F1","date":"2024-01-05","revenue":100}`,
	)

	logger, logs := testutil.NewTestLogger(t)
	calc := &fakeCalculator{err: errors.New("engine down")}
	result, err := newServiceWithLogger(store, logger, WithAutoCalculate(calc)).Run(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, result.Status)

	rec, ok := logs.Find("KPI auto-calculation failed")
	require.True(t, ok)
	assert.Equal(t, slog.LevelError, rec.Level)
	assert.Equal(t, "engine down", rec.Attrs["error"])
	assert.Equal(t, id, rec.Attrs["batch_id"])

	batch, err := store.GetBatch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, batch.Status)
}

func TestConcurrentRunsAreCoalesced(t *testing.T) {
	ctx := context.Background()
	base := newTestStore(t)
	id := stageBatch(t, base, domain.DatasetOperations,
		`{"factory_code":"F1","date":"2024-01-05","revenue":100}`,
	)

	store := &failingStore{Store: base, gate: make(chan struct{})}
	svc := newService(store)

	var wg sync.WaitGroup
	results := make([]*domain.BatchResult, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Run(ctx, id)
			assert.NoError(t, err)
			results[i] = r
		}(i)
	}

	require.Eventually(t, func() bool { return store.gets.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(store.gate)
	wg.Wait()

	assert.Equal(t, int32(1), store.gets.Load())
	require.NotNil(t, results[0])
	require.NotNil(t, results[1])
	assert.Equal(t, results[0], results[1])
	assert.NotSame(t, results[0], results[1])
}

func TestCancelledCallerDoesNotAbortSharedRun(t *testing.T) {
	base := newTestStore(t)
	id := stageBatch(t, base, domain.DatasetOperations,
		`{"factory_code":"F1","date":"2024-01-05","revenue":100}`,
	)

	store := &failingStore{Store: base, gate: make(chan struct{})}
	svc := newService(store)

	leaving, cancel := context.WithCancel(context.Background())
	defer cancel()

	leftErr := make(chan error, 1)
	go func() {
		_, err := svc.Run(leaving, id)
		leftErr <- err
	}()
	require.Eventually(t, func() bool { return store.gets.Load() == 1 }, time.Second, 5*time.Millisecond)

	type outcome struct {
		result *domain.BatchResult
		err    error
	}
	stayed := make(chan outcome, 1)
	go func() {
		r, err := svc.Run(context.Background(), id)
		stayed <- outcome{r, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-leftErr, context.Canceled)

	close(store.gate)
	got := <-stayed
	require.NoError(t, got.err)
	assert.Equal(t, 1, got.result.LoadedRows)
	assert.Equal(t, int32(1), store.gets.Load())

	b, err := base.GetBatch(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.BatchStatusCompleted, b.Status)
}

func TestBatchError(t *testing.T) {
	err := NewExecutionError(4, errors.New("boom"))
	assert.Equal(t, "[execution] batch 4: batch processing failed: boom", err.Error())
	assert.Equal(t, "boom", errors.Unwrap(err).Error())

	nf := NewNotFoundError(9)
	assert.Equal(t, "[not_found] batch 9: batch 9 not found", nf.Error())
	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.False(t, errors.Is(nf, ErrExecution))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}
