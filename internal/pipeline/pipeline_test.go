package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/actiond/internal/actionitem"
	"github.com/fyrsmithlabs/actiond/internal/config"
	"github.com/fyrsmithlabs/actiond/internal/llm"
	"github.com/fyrsmithlabs/actiond/internal/logging"
	"github.com/fyrsmithlabs/actiond/internal/telemetry"
	"github.com/fyrsmithlabs/actiond/internal/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

const transcript = `Alice: Bob, please send the budget by Friday.
Bob: Sure, I'll send the budget by Friday.

Carol: I will do something about the stuff soon.
Carol: And I'll fix the login bug ASAP.`

const (
	mapAlice = `[{"task": "Send the budget", "owner": "Bob", "deadline": "Friday"}]`
	mapBob   = `Found one: [{"task": "send the  budget", "owner": "Bob", "deadline": "Friday"}]`
	mapCarol = `[
		{"task": "Do something about the stuff", "owner": "Carol", "deadline": "soon"},
		{"task": "Fix the login bug", "owner": "Carol", "deadline": "ASAP"}
	]`
	reduceOK = `{
		"items": [
			{"task": "Send the budget", "owner": "Bob", "deadline": "Friday"},
			{"task": "Do something about the stuff", "owner": "Carol", "deadline": "soon", "source_chunk": 2},
			{"task": "Fix the login bug", "owner": "Carol", "deadline": "ASAP"}
		],
		"summary": {"duplicates_removed": 1, "items_needing_review": 0}
	}`
)

// router answers each stage's prompt like a cooperative service would.
type router struct {
	mapFor func(prompt string) (string, error)
	reduce func() (string, error)
	score  func(prompt string) (string, error)
}

func (r router) client() *llm.Mock {
	return llm.NewMock(func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Rate your confidence"):
			return r.score(prompt)
		case strings.Contains(prompt, "Action items:"):
			return r.reduce()
		default:
			return r.mapFor(prompt)
		}
	})
}

func happyRouter() router {
	return router{
		mapFor: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Alice: Bob, please"):
				return mapAlice, nil
			case strings.Contains(prompt, "Bob: Sure"):
				return mapBob, nil
			case strings.Contains(prompt, "Carol:"):
				return mapCarol, nil
			}
			return "[]", nil
		},
		reduce: func() (string, error) { return reduceOK, nil },
		score: func(prompt string) (string, error) {
			switch {
			case strings.Contains(prompt, "Task: Send the budget"):
				return "0.9", nil
			case strings.Contains(prompt, "Task: Do something"):
				return "0.8", nil
			case strings.Contains(prompt, "Task: Fix the login bug"):
				return " 0.7 ", nil
			}
			return "", errors.New("unexpected item")
		},
	}
}

func newTestPipeline(client llm.Client, logger *logging.Logger, metrics *Metrics) *Pipeline {
	cfg := config.Default().Pipeline
	clients := &llm.StageClients{Map: client, Reduce: client, Score: client}
	return New(BuildStages(cfg, clients, nil, logger), logger, metrics)
}

func TestRun_EndToEnd(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	tt.InstallGlobal(t)
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	logger := logging.NewTestLogger()

	client := happyRouter().client()
	p := newTestPipeline(client, logger.Logger, metrics)

	var stages []string
	p.OnProgress(func(pr Progress) { stages = append(stages, pr.Stage) })

	res, err := p.Run(context.Background(), transcript, "weekly.txt")
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{StageChunk, "map", "reduce", "confidence", "validation"}, stages)

	require.Len(t, res.Items, 2)
	budget, bug := res.Items[0], res.Items[1]

	assert.Equal(t, "Send the budget", budget.Task)
	assert.Equal(t, "Bob", budget.Owner)
	assert.InDelta(t, 0.9, budget.Confidence, 1e-9)
	require.NotNil(t, budget.SourceChunk)
	assert.Equal(t, 0, *budget.SourceChunk, "provenance restored through consolidation")
	assert.Nil(t, budget.Notes)

	assert.Equal(t, "Fix the login bug", bug.Task)
	assert.InDelta(t, 0.7, bug.Confidence, 1e-9)
	assert.Equal(t, 2, *bug.SourceChunk)
	assert.Equal(t, validation.DeadlineMarker, actionitem.Deref(bug.Notes))

	require.Len(t, res.Rejected, 1)
	assert.Equal(t, "Do something about the stuff", res.Rejected[0].Item.Task)
	assert.Equal(t, validation.ReasonVagueTask, res.Rejected[0].Reason)

	s := res.Stats
	assert.Equal(t, 3, s.Chunks)
	assert.Equal(t, 4, s.Candidates)
	assert.Zero(t, s.MapFailures)
	assert.Equal(t, 3, s.Consolidated)
	assert.Equal(t, 1, s.DuplicatesRemoved)
	assert.False(t, s.ReduceFellBack)
	assert.Equal(t, "Consolidated from 4 items", s.ReduceNotes)
	assert.Equal(t, 3, s.Scored)
	assert.Equal(t, 2, s.Accepted)
	assert.Equal(t, 1, s.Rejected)
	assert.Equal(t, 1, s.DeadlinesFlagged)
	assert.Zero(t, s.AmbiguousOwners)
	assert.Len(t, s.StageDurations, 5)

	// 3 map calls, 1 reduce call, 3 score calls.
	assert.Equal(t, 7, client.Calls())

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusSuccess)))
	assert.Equal(t, 4.0, testutil.ToFloat64(metrics.StageItemsTotal.WithLabelValues("map")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StageItemsTotal.WithLabelValues("validation")))

	tt.AssertSpanExists(t, "pipeline.run")
	for _, stage := range stages {
		tt.AssertSpanExists(t, "pipeline."+stage)
	}
	runID, ok := tt.SpanAttribute("pipeline.run", "run.id")
	require.True(t, ok)
	assert.Equal(t, res.RunID, runID.AsString())

	logger.AssertField(t, "pipeline run finished", "run.id", res.RunID)
	logger.AssertField(t, "pipeline run finished", "run.source", "weekly.txt")
}

func TestRun_ConfidenceBounds(t *testing.T) {
	r := happyRouter()
	r.score = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Send the budget") {
			return "12", nil
		}
		return "-3", nil
	}

	p := newTestPipeline(r.client(), nil, nil)
	p.stages.Validator = validation.New(0, nil)

	res, err := p.Run(context.Background(), transcript, "t")
	require.NoError(t, err)

	for _, item := range append(res.Items, rejectedItems(res.Rejected)...) {
		assert.GreaterOrEqual(t, item.Confidence, 0.0)
		assert.LessOrEqual(t, item.Confidence, 1.0)
	}
}

func TestRun_AllChunksUnreachable(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	client := llm.FailingMock(fmt.Errorf("%w: dial tcp: connection refused", llm.ErrUnreachable))

	res, err := newTestPipeline(client, nil, metrics).Run(context.Background(), transcript, "t")

	assert.Nil(t, res)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCollaboratorUnreachable)
	assert.Contains(t, err.Error(), "3 of 3 chunks failed")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.FallbacksTotal.WithLabelValues("map")))
}

func TestRun_PartialMapFailureDegrades(t *testing.T) {
	r := happyRouter()
	base := r.mapFor
	r.mapFor = func(prompt string) (string, error) {
		if strings.Contains(prompt, "Carol:") {
			return "", fmt.Errorf("%w: timeout", llm.ErrUnreachable)
		}
		return base(prompt)
	}
	r.reduce = func() (string, error) {
		return `{"items": [{"task": "Send the budget", "owner": "Bob", "deadline": "Friday"}], "summary": {"duplicates_removed": 1}}`, nil
	}

	res, err := newTestPipeline(r.client(), nil, nil).Run(context.Background(), transcript, "t")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Stats.MapFailures)
	assert.Equal(t, 2, res.Stats.Candidates)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Send the budget", res.Items[0].Task)
}

func TestRun_NoCandidatesEndsEarly(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	var reduceCalls int
	r := router{
		mapFor: func(string) (string, error) { return "No action items here.", nil },
		reduce: func() (string, error) { reduceCalls++; return "", nil },
		score:  func(string) (string, error) { return "", errors.New("not expected") },
	}

	res, err := newTestPipeline(r.client(), nil, metrics).Run(context.Background(), transcript, "t")
	require.NoError(t, err)

	assert.Empty(t, res.Items)
	assert.NotNil(t, res.Items)
	assert.Equal(t, 3, res.Stats.MapFailures, "empty responses are recorded as chunk errors")
	assert.Zero(t, reduceCalls)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues(StatusEmpty)))
}

func TestRun_EmptyTranscript(t *testing.T) {
	client := happyRouter().client()

	res, err := newTestPipeline(client, nil, nil).Run(context.Background(), "\n \n", "blank.txt")
	require.NoError(t, err)

	assert.Zero(t, res.Stats.Chunks)
	assert.Empty(t, res.Items)
	assert.Zero(t, client.Calls())
}

func TestRun_ReduceFallbackKeepsCandidates(t *testing.T) {
	r := happyRouter()
	r.reduce = func() (string, error) { return "Sorry, I can't help with that.", nil }
	logger := logging.NewTestLogger()

	res, err := newTestPipeline(r.client(), logger.Logger, nil).Run(context.Background(), transcript, "t")
	require.NoError(t, err)

	assert.True(t, res.Stats.ReduceFellBack)
	assert.Contains(t, res.Stats.ReduceNotes, "Consolidation failed")
	assert.Equal(t, 4, res.Stats.Consolidated)
	// Both budget candidates survive; the vague item is rejected.
	assert.Equal(t, 3, res.Stats.Accepted)
	logger.AssertLogged(t, zapcore.WarnLevel, "consolidation failed")
}

func TestResult_Document(t *testing.T) {
	res, err := newTestPipeline(happyRouter().client(), nil, nil).Run(context.Background(), transcript, "weekly.txt")
	require.NoError(t, err)

	raw, err := json.Marshal(res.Document())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "weekly.txt", doc["source"])
	assert.Equal(t, 2.0, doc["total_items"])

	items, ok := doc["items"].([]any)
	require.True(t, ok)
	first, ok := items[0].(map[string]any)
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{"task", "owner", "deadline", "confidence", "source_chunk", "speaker", "notes"},
		keys(first))
	assert.Nil(t, first["speaker"])
	assert.Nil(t, first["notes"])

	empty, err := json.Marshal((&Result{Source: "x"}).Document())
	require.NoError(t, err)
	assert.JSONEq(t, `{"source": "x", "total_items": 0, "items": []}`, string(empty))
}

func TestStats_MarshalJSON(t *testing.T) {
	res, err := newTestPipeline(happyRouter().client(), nil, nil).Run(context.Background(), transcript, "t")
	require.NoError(t, err)

	raw, err := json.Marshal(res.Stats)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, 3.0, got["chunks"])
	assert.Equal(t, 2.0, got["accepted"])
	assert.Contains(t, got, "total_seconds")
	stageSeconds, ok := got["stage_seconds"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, stageSeconds, "reduce")
}

func rejectedItems(rs []validation.Rejection) []actionitem.ActionItem {
	out := make([]actionitem.ActionItem, len(rs))
	for i, r := range rs {
		out[i] = r.Item
	}
	return out
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
