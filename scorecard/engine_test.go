// ABOUTME: Tests for the scorecard engine
// ABOUTME: Covers determinism, coverage guarantee, confidence floor, and sources
package scorecard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/content"
	"github.com/harperreed/demogen/models"
)

func testRecord() models.Record {
	return models.Record{ID: "rec-1", Name: "Acme Renewal", Stage: "discovery"}
}

func meddicc(t *testing.T) models.ScorecardTemplate {
	t.Helper()
	tpl, err := Template("MEDDICC")
	require.NoError(t, err)
	return tpl
}

func TestScoreDeterministic(t *testing.T) {
	engine := NewEngine(content.Disabled{}, 42)
	opts := Options{Mode: config.ModeHybrid, ConfidenceFloor: 0.55, CoverageTarget: 0.8}

	a := engine.Score(context.Background(), testRecord(), meddicc(t), opts)
	b := engine.Score(context.Background(), testRecord(), meddicc(t), opts)
	assert.Equal(t, a, b)
}

func TestScoreCoverageGuarantee(t *testing.T) {
	// External capability forced to always fail; coverage must still be >= 1/Q.
	engine := NewEngine(content.Disabled{}, 42)
	tpl := meddicc(t)

	result := engine.Score(context.Background(), testRecord(), tpl, Options{
		Mode:            config.ModeHybrid,
		ConfidenceFloor: 0.55,
		CoverageTarget:  0.01,
	})
	require.NotEmpty(t, result.Answers)
	assert.GreaterOrEqual(t, result.Coverage, 1.0/float64(len(tpl.Questions))-0.01)
}

func TestScoreConfidenceFloor(t *testing.T) {
	engine := NewEngine(content.Disabled{}, 7)
	for _, floor := range []float64{0.55, 0.7, 0.9} {
		result := engine.Score(context.Background(), testRecord(), meddicc(t), Options{
			Mode:            config.ModeHeuristic,
			ConfidenceFloor: floor,
			CoverageTarget:  1.0,
		})
		for _, a := range result.Answers {
			assert.GreaterOrEqual(t, a.Confidence, floor)
		}
	}
}

func TestScoreCoverageTarget(t *testing.T) {
	engine := NewEngine(nil, 42)
	tpl := meddicc(t)

	result := engine.Score(context.Background(), testRecord(), tpl, Options{
		Mode:            config.ModeHeuristic,
		ConfidenceFloor: 0.55,
		CoverageTarget:  0.8,
	})

	// 7 questions at 0.8 coverage selects 5.
	assert.Len(t, result.Answers, 5)
	assert.InDelta(t, 5.0/7.0, result.Coverage, 0.01)
	assert.Equal(t, models.StateScored, result.State)

	seen := map[string]bool{}
	for _, a := range result.Answers {
		assert.False(t, seen[a.QuestionID], "duplicate answer for %s", a.QuestionID)
		seen[a.QuestionID] = true
		assert.Equal(t, models.SourceHeuristic, a.Source)
		assert.NotEmpty(t, a.Text)
	}
}

func TestScoreExternalSource(t *testing.T) {
	gen := content.Static{content.KindScorecardAnswer: "Confirmed with the champion on our last call."}
	engine := NewEngine(gen, 42)

	result := engine.Score(context.Background(), testRecord(), meddicc(t), Options{
		Mode:            config.ModeExternal,
		ConfidenceFloor: 0.5,
		CoverageTarget:  1.0,
	})
	require.NotEmpty(t, result.Answers)
	for _, a := range result.Answers {
		assert.Equal(t, models.SourceExternal, a.Source)
		assert.Equal(t, "Confirmed with the champion on our last call.", a.Text)
	}
}

func TestScoreHeuristicModeIgnoresGenerator(t *testing.T) {
	gen := content.Static{content.KindScorecardAnswer: "should never appear"}
	engine := NewEngine(gen, 42)

	result := engine.Score(context.Background(), testRecord(), meddicc(t), Options{
		Mode:            config.ModeHeuristic,
		ConfidenceFloor: 0.55,
		CoverageTarget:  1.0,
	})
	for _, a := range result.Answers {
		assert.Equal(t, models.SourceHeuristic, a.Source)
		assert.NotEqual(t, "should never appear", a.Text)
	}
}

func TestScoreEmptyTemplate(t *testing.T) {
	engine := NewEngine(nil, 42)
	result := engine.Score(context.Background(), testRecord(), models.ScorecardTemplate{Name: "empty"}, Options{
		Mode:            config.ModeHeuristic,
		ConfidenceFloor: 0.55,
		CoverageTarget:  0.8,
	})
	assert.Empty(t, result.Answers)
	assert.Equal(t, models.StateScored, result.State)
	assert.Zero(t, result.Coverage)
}

func TestScoreMeanConfidenceAndScore(t *testing.T) {
	engine := NewEngine(nil, 42)
	result := engine.Score(context.Background(), testRecord(), meddicc(t), Options{
		Mode:            config.ModeHeuristic,
		ConfidenceFloor: 0.55,
		CoverageTarget:  1.0,
	})

	var sum float64
	for _, a := range result.Answers {
		sum += a.Confidence
	}
	assert.InDelta(t, sum/float64(len(result.Answers)), result.MeanConfidence, 0.01)
	assert.Greater(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 100.0)
}

func TestTemplateLookup(t *testing.T) {
	for _, name := range TemplateNames() {
		tpl, err := Template(name)
		require.NoError(t, err)
		assert.Equal(t, name, tpl.Name)
		assert.NotEmpty(t, tpl.Questions)
	}

	_, err := Template("NOPE")
	assert.Error(t, err)
}
