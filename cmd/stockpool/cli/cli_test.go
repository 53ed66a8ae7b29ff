package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockpool/internal/inventory"
	"github.com/odyssey-erp/stockpool/jobs"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubLister struct{ rows []inventory.Product }

func (s stubLister) ListImportedProducts(context.Context) ([]inventory.Product, error) {
	return s.rows, nil
}

type stubRevaluer struct {
	called   bool
	currency decimal.Decimal
	err      error
}

func (s *stubRevaluer) RevalueCurrency(_ context.Context, c decimal.Decimal, _ int64) (inventory.RevalueResult, error) {
	s.called = true
	s.currency = c
	return inventory.RevalueResult{RunID: 7, NewCurrency: c, RowsRevalued: 1}, s.err
}

type stubQueue struct{ actor int64 }

func (s *stubQueue) EnqueueRevaluation(_ context.Context, _ decimal.Decimal, actorID int64) (string, error) {
	s.actor = actorID
	return "task-9", nil
}

func catalogue() []inventory.Product {
	return []inventory.Product{
		{
			ID: 1, Model: "RT-1",
			Yuan: dec("10"), Currency: dec("2"), Weight: dec("0.5"),
			ShipmentTax: dec("4"), ShipmentTaxAir: dec("12"),
			Sea: dec("22"), Air: dec("26"),
			StockQty: 2, SeaStockQty: 2, AvgPurchasePrice: dec("22"),
		},
		{ID: 2, Model: "LOCAL", StockQty: 3, LocalQty: 3, AvgPurchasePrice: dec("5")},
	}
}

func TestRevalueCommandDryRunJSON(t *testing.T) {
	rev := &stubRevaluer{}
	c, err := NewFXOpsCLI(stubLister{rows: catalogue()}, rev, nil)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	code := c.RevalueCommand(context.Background(), RevalueOptions{
		Currency: "3", DryRun: true, JSONOutput: true, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())
	require.False(t, rev.called)

	var summary RevalueSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.DryRun)
	require.Equal(t, 1, summary.RowsRevalued)
	require.Len(t, summary.Preview, 1)
	require.True(t, dec("32").Equal(summary.Preview[0].NewAvg))
	require.True(t, dec("32").Equal(summary.Preview[0].NewSea))
	require.True(t, dec("36").Equal(summary.Preview[0].NewAir))
	require.True(t, dec("22").Equal(summary.Preview[0].OldAvg))
}

func TestRevalueCommandApplies(t *testing.T) {
	rev := &stubRevaluer{}
	c, err := NewFXOpsCLI(stubLister{}, rev, nil)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := c.RevalueCommand(context.Background(), RevalueOptions{Currency: "2.5", Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Zero(t, code)
	require.True(t, rev.called)
	require.True(t, dec("2.5").Equal(rev.currency))
	require.Contains(t, stdout.String(), "Revaluation run 7")
}

func TestRevalueCommandAsync(t *testing.T) {
	queue := &stubQueue{}
	c, err := NewFXOpsCLI(stubLister{}, &stubRevaluer{}, queue)
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := RunFX(context.Background(), c, []string{"revalue", "--currency", "4", "--async", "--actor", "3"}, stdout, new(bytes.Buffer))
	require.Zero(t, code)
	require.Equal(t, int64(3), queue.actor)
	require.Contains(t, stdout.String(), "task-9")
}

func TestRevalueCommandErrors(t *testing.T) {
	rev := &stubRevaluer{err: errors.New("boom")}
	c, err := NewFXOpsCLI(stubLister{}, rev, nil)
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, c.RevalueCommand(context.Background(), RevalueOptions{Currency: "0", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "invalid currency")

	stderr.Reset()
	require.Equal(t, 1, c.RevalueCommand(context.Background(), RevalueOptions{Currency: "2", Async: true, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "queue not configured")

	stderr.Reset()
	require.Equal(t, 1, c.RevalueCommand(context.Background(), RevalueOptions{Currency: "2", Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "boom")

	require.Equal(t, 2, RunFX(context.Background(), c, []string{"import"}, new(bytes.Buffer), new(bytes.Buffer)))

	_, err = NewFXOpsCLI(nil, rev, nil)
	require.Error(t, err)
}

type fakeEnqueuer struct{ tasks []*asynq.Task }

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueLow}, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type fakeInspector struct{ queue string }

func (f *fakeInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	f.queue = queue
	return &asynq.QueueInfo{Queue: queue, Pending: 4, Retry: 1}, nil
}

func (f *fakeInspector) ListScheduledTasks(queue string, _ ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	f.queue = queue
	return []*asynq.TaskInfo{{ID: "s-1", Type: jobs.TaskIdempotencyCleanup, NextProcessAt: time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC)}}, nil
}

func (f *fakeInspector) Close() error { return nil }

func TestJobsCLITrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	c := &JobsCLI{client: enq, inspector: &fakeInspector{}, retention: time.Hour}

	info, err := c.Trigger(context.Background(), jobs.TaskIdempotencyCleanup)
	require.NoError(t, err)
	require.Equal(t, jobs.TaskIdempotencyCleanup, info.Type)
	require.Len(t, enq.tasks, 1)

	_, err = c.Trigger(context.Background(), jobs.TaskInventoryRevaluation)
	require.ErrorContains(t, err, "fx revalue")

	_, err = c.Trigger(context.Background(), "nope")
	require.ErrorContains(t, err, "unsupported")
}

func TestRunJobsStatsAndScheduled(t *testing.T) {
	insp := &fakeInspector{}
	c := &JobsCLI{client: &fakeEnqueuer{}, inspector: insp}

	stdout := new(bytes.Buffer)
	require.Zero(t, RunJobs(context.Background(), c, []string{"stats"}, stdout, new(bytes.Buffer)))
	require.Equal(t, jobs.QueueDefault, insp.queue)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, 4, stats.Pending)
	require.Equal(t, 1, stats.Retry)

	stdout.Reset()
	require.Zero(t, RunJobs(context.Background(), c, []string{"scheduled", "--queue", jobs.QueueLow}, stdout, new(bytes.Buffer)))
	require.Equal(t, jobs.QueueLow, insp.queue)
	require.Contains(t, stdout.String(), "s-1 idempotency:cleanup next=2025-01-02T03:00:00Z")

	require.Equal(t, 2, RunJobs(context.Background(), c, []string{"trigger"}, new(bytes.Buffer), new(bytes.Buffer)))
	require.Equal(t, 2, RunJobs(context.Background(), c, []string{"purge"}, new(bytes.Buffer), new(bytes.Buffer)))
}
