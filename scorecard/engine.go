// ABOUTME: Scorecard answer synthesis, confidence floor, and coverage scoring
// ABOUTME: External content degrades to a total seeded heuristic, never aborts
package scorecard

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/harperreed/demogen/config"
	"github.com/harperreed/demogen/content"
	"github.com/harperreed/demogen/models"
)

// Options control one scoring invocation.
type Options struct {
	Mode            string
	ConfidenceFloor float64
	CoverageTarget  float64
}

// Engine synthesizes scored answer sets for records. The external generator
// is optional; with it nil, or any of its calls failing, answers come from the
// seeded heuristic generator, which is total and always meets the floor.
type Engine struct {
	generator content.Generator
	seed      int64
}

// NewEngine builds an engine. generator may be nil.
func NewEngine(generator content.Generator, seed int64) *Engine {
	return &Engine{generator: generator, seed: seed}
}

// Score produces the answer set for one record against a template. With the
// external capability disabled, identical inputs produce identical results.
func (e *Engine) Score(ctx context.Context, record models.Record, tpl models.ScorecardTemplate, opts Options) models.ScorecardResult {
	result := models.ScorecardResult{
		ScorecardID: scorecardID(record.ID, tpl.Name),
		RecordID:    record.ID,
		Template:    tpl.Name,
		State:       models.StatePending,
	}
	if len(tpl.Questions) == 0 || opts.CoverageTarget <= 0 {
		result.State = models.StateScored
		return result
	}

	result.State = models.StateScoring

	selected := selectQuestions(e.seed, record.ID, tpl, opts.CoverageTarget)
	dropped := 0

	for _, q := range selected {
		answer, ok := e.answer(ctx, record, q, opts)
		if !ok {
			dropped++
			continue
		}
		result.Answers = append(result.Answers, answer)
	}

	result.Coverage = round2(float64(len(result.Answers)) / float64(len(tpl.Questions)))
	result.MeanConfidence = round2(meanConfidence(result.Answers))
	result.Score = compositeScore(result.MeanConfidence, result.Coverage)

	if dropped > 0 {
		result.State = models.StatePartiallyScored
	} else {
		result.State = models.StateScored
	}
	return result
}

// answer produces one answer, applying the floor policy: a below-floor answer
// is regenerated once through the heuristic path and dropped if still short.
func (e *Engine) answer(ctx context.Context, record models.Record, q models.Question, opts Options) (models.ScorecardAnswer, bool) {
	rng := answerStream(e.seed, record.ID, q.ID)

	text := ""
	source := models.SourceHeuristic
	if opts.Mode != config.ModeHeuristic && e.generator != nil {
		generated, err := e.generator.Generate(ctx, content.KindScorecardAnswer, content.Context{
			RecordName: record.Name,
			Stage:      record.Stage,
			Question:   q.Prompt,
		})
		if err == nil && generated != "" {
			text = generated
			source = models.SourceExternal
		}
	}
	confidence := round2(0.5 + rng.Float64()*0.45)

	if text == "" {
		text = heuristicText(rng, q)
		confidence = heuristicConfidence(rng, opts.ConfidenceFloor)
	}

	if confidence < opts.ConfidenceFloor {
		text = heuristicText(rng, q)
		source = models.SourceHeuristic
		confidence = heuristicConfidence(rng, opts.ConfidenceFloor)
	}
	if confidence < opts.ConfidenceFloor {
		return models.ScorecardAnswer{}, false
	}

	return models.ScorecardAnswer{
		QuestionID: q.ID,
		Text:       text,
		Confidence: confidence,
		Source:     source,
	}, true
}

// selectQuestions picks the coverage-target share of the template, at least
// one question, in template order so coverage stays deterministic.
func selectQuestions(seed int64, recordID string, tpl models.ScorecardTemplate, coverageTarget float64) []models.Question {
	n := int(float64(len(tpl.Questions)) * coverageTarget)
	if n < 1 {
		n = 1
	}
	if n > len(tpl.Questions) {
		n = len(tpl.Questions)
	}

	rng := answerStream(seed, recordID, tpl.Name)
	picked := rng.Perm(len(tpl.Questions))[:n]

	chosen := make(map[int]bool, n)
	for _, i := range picked {
		chosen[i] = true
	}
	var out []models.Question
	for i, q := range tpl.Questions {
		if chosen[i] {
			out = append(out, q)
		}
	}
	return out
}

func heuristicText(rng *rand.Rand, q models.Question) string {
	pool, ok := heuristicAnswers[q.Category]
	if !ok || len(pool) == 0 {
		return fallbackAnswer
	}
	return pool[rng.IntN(len(pool))]
}

// heuristicConfidence always meets the floor.
func heuristicConfidence(rng *rand.Rand, floor float64) float64 {
	span := 0.95 - floor
	if span < 0 {
		span = 0
	}
	c := round2(floor + rng.Float64()*span)
	if c < floor {
		c = floor
	}
	return c
}

func meanConfidence(answers []models.ScorecardAnswer) float64 {
	if len(answers) == 0 {
		return 0
	}
	var sum float64
	for _, a := range answers {
		sum += a.Confidence
	}
	return sum / float64(len(answers))
}

// compositeScore weights confidence over coverage, scaled to 100.
func compositeScore(meanConf, coverage float64) float64 {
	return math.Round((meanConf*0.7+coverage*0.3)*1000) / 10
}

func scorecardID(recordID, template string) string {
	return strings.ToLower(fmt.Sprintf("sc_%s_%s", recordID, template))
}

func answerStream(seed int64, recordID, key string) *rand.Rand {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s:%s", seed, recordID, key)))
	hi := binary.BigEndian.Uint64(sum[0:8])
	lo := binary.BigEndian.Uint64(sum[8:16])
	return rand.New(rand.NewPCG(hi, lo))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
