package producer

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/channel"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/domain"
	"github.com/Machapes/Proyecto-Final-Distribuida-Aplicada/internal/store"
)

type fakeModels struct {
	published []domain.Model
	err       error
}

func (f *fakeModels) Publish(_ context.Context, m domain.Model) (channel.PeekEntry, error) {
	if f.err != nil {
		return channel.PeekEntry{}, f.err
	}
	f.published = append(f.published, m)
	return channel.PeekEntry{Model: m, Version: int64(len(f.published))}, nil
}

// fakeScenarios records scenarios and fails the ids listed in failIDs.
type fakeScenarios struct {
	mu        sync.Mutex
	scenarios []domain.Scenario
	failIDs   map[string]bool
	onPublish func()
}

func (f *fakeScenarios) PublishScenario(_ context.Context, sc domain.Scenario) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onPublish != nil {
		f.onPublish()
	}
	if f.failIDs[sc.ID] {
		return &domain.PublishError{Channel: "scenarios", Err: errors.New("broker down")}
	}
	f.scenarios = append(f.scenarios, sc)
	return nil
}

func testModel(t *testing.T) domain.Model {
	t.Helper()
	x, err := domain.NewVariable("x", domain.Normal, map[string]float64{"mean": 10, "std": 1})
	require.NoError(t, err)
	y, err := domain.NewVariable("y", domain.Exponential, map[string]float64{"scale": 2})
	require.NoError(t, err)
	m, err := domain.NewModel("m1", "result = x + y", []domain.Variable{x, y}, 1000)
	require.NoError(t, err)
	return m
}

func TestGenerateAndPublish_RequiresModel(t *testing.T) {
	p := New(&fakeModels{}, &fakeScenarios{})
	_, err := p.GenerateAndPublish(context.Background(), 10)
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestPublishModel_ParksModel(t *testing.T) {
	models := &fakeModels{}
	p := New(models, &fakeScenarios{})

	entry, err := p.PublishModel(context.Background(), testModel(t))
	require.NoError(t, err)
	assert.Equal(t, int64(1), entry.Version)
	require.Len(t, models.published, 1)
	assert.Equal(t, "m1", models.published[0].ID)
	require.NotNil(t, p.Model())
	assert.Equal(t, "m1", p.Model().ID)
}

func TestPublishModel_RejectsInvalidModel(t *testing.T) {
	models := &fakeModels{}
	p := New(models, &fakeScenarios{})

	_, err := p.PublishModel(context.Background(), domain.Model{ID: "m1", Iterations: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidModel)
	assert.Empty(t, models.published)
}

func TestPublishModel_PublishFailure(t *testing.T) {
	p := New(&fakeModels{err: errors.New("down")}, &fakeScenarios{})

	_, err := p.PublishModel(context.Background(), testModel(t))
	require.Error(t, err)
	assert.Nil(t, p.Model())
}

func TestGenerateAndPublish_PublishesCount(t *testing.T) {
	scenarios := &fakeScenarios{}
	p := New(&fakeModels{}, scenarios, WithSeed(42))
	_, err := p.PublishModel(context.Background(), testModel(t))
	require.NoError(t, err)

	report, err := p.GenerateAndPublish(context.Background(), 250)
	require.NoError(t, err)
	assert.Equal(t, 250, report.Published)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, int64(0), report.FirstSeq)
	assert.Equal(t, int64(250), report.NextSeq)

	require.Len(t, scenarios.scenarios, 250)
	assert.Equal(t, "m1_000000", scenarios.scenarios[0].ID)
	assert.Equal(t, "m1_000249", scenarios.scenarios[249].ID)
	for _, sc := range scenarios.scenarios {
		assert.Equal(t, "m1", sc.ModelID)
		assert.Len(t, sc.Parameters, 2)
		assert.GreaterOrEqual(t, sc.Parameters["y"], 0.0)
	}

	again, err := p.GenerateAndPublish(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(250), again.FirstSeq, "sequence continues across batches")
}

func TestGenerateAndPublish_SkipsFailures(t *testing.T) {
	scenarios := &fakeScenarios{failIDs: map[string]bool{"m1_000003": true, "m1_000007": true}}
	p := New(&fakeModels{}, scenarios)
	_, err := p.PublishModel(context.Background(), testModel(t))
	require.NoError(t, err)

	report, err := p.GenerateAndPublish(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 8, report.Published)
	assert.Equal(t, 2, report.Failed)
	assert.Equal(t, int64(10), report.NextSeq, "failed ids are not reused")
}

func TestGenerateAndPublish_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := 0
	scenarios := &fakeScenarios{}
	scenarios.onPublish = func() {
		n++
		if n == 5 {
			cancel()
		}
	}
	p := New(&fakeModels{}, scenarios)
	_, err := p.PublishModel(ctx, testModel(t))
	require.NoError(t, err)

	report, err := p.GenerateAndPublish(ctx, 100)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 5, report.Published)
}

func TestGenerateAndPublish_SameSeedSameScenarios(t *testing.T) {
	run := func() []domain.Scenario {
		scenarios := &fakeScenarios{}
		p := New(&fakeModels{}, scenarios, WithSeed(7))
		_, err := p.PublishModel(context.Background(), testModel(t))
		require.NoError(t, err)
		_, err = p.GenerateAndPublish(context.Background(), 20)
		require.NoError(t, err)
		return scenarios.scenarios
	}
	assert.Equal(t, run(), run())
}

func TestSequences_ResumeAcrossSessions(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "broker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	first := &fakeScenarios{}
	p1 := New(&fakeModels{}, first, WithSequences(s))
	_, err = p1.PublishModel(ctx, testModel(t))
	require.NoError(t, err)
	_, err = p1.GenerateAndPublish(ctx, 5)
	require.NoError(t, err)

	second := &fakeScenarios{}
	p2 := New(&fakeModels{}, second, WithSequences(s))
	require.NoError(t, p2.UseModel(ctx, testModel(t)))
	report, err := p2.GenerateAndPublish(ctx, 3)
	require.NoError(t, err)

	assert.Equal(t, int64(5), report.FirstSeq)
	require.Len(t, second.scenarios, 3)
	assert.Equal(t, "m1_000005", second.scenarios[0].ID)
}

func TestProducer_EndToEndOnBroker(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "broker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	slot := channel.NewModelSlot(s, channel.ModelQueue)
	queue := channel.NewQueue(s, channel.ScenarioQueue)
	p := New(slot, queue, WithSequences(s))

	_, err = p.PublishModel(ctx, testModel(t))
	require.NoError(t, err)
	_, err = p.GenerateAndPublish(ctx, 20)
	require.NoError(t, err)

	parked, err := slot.Peek(ctx)
	require.NoError(t, err)
	require.NotNil(t, parked)
	assert.Equal(t, "m1", parked.ID)

	depth, err := queue.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(20), depth.Ready)
}
