package detector

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mikey/submission-guard/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func humanTelemetry() *core.BehavioralTelemetry {
	return &core.BehavioralTelemetry{
		InteractionDelay: 2.4,
		MouseMovements:   140,
		MouseDistance:    5200,
		Keystrokes:       120,
		TypingSpeed:      45,
		TypingRhythm:     []float64{180, 95, 240, 130, 310, 150, 90, 205},
		CopyPastes:       0,
		TimeOnPage:       48,
	}
}

func botTelemetry() *core.BehavioralTelemetry {
	return &core.BehavioralTelemetry{
		InteractionDelay: 0.05,
		MouseMovements:   0,
		Keystrokes:       120,
		TypingSpeed:      900,
		TypingRhythm:     []float64{10, 10, 10, 10, 10, 10},
		CopyPastes:       0,
		TimeOnPage:       0.8,
	}
}

func evaluateTelemetry(t *testing.T, b *BehavioralAnalyzer, tel *core.BehavioralTelemetry) core.SignalResult {
	t.Helper()
	sub := &core.Submission{
		Fields:    map[string]string{"message": "Hello, could you call me back about the quote?"},
		Telemetry: tel,
	}
	res, err := b.Evaluate(context.Background(), sub)
	require.NoError(t, err)
	return res
}

func TestBehavioralAnalyzer_HumanVersusBot(t *testing.T) {
	b := NewBehavioralAnalyzer(DefaultBehavioralConfig())

	human := evaluateTelemetry(t, b, humanTelemetry())
	bot := evaluateTelemetry(t, b, botTelemetry())

	assert.True(t, human.Available)
	assert.Equal(t, 0.0, human.Score)
	assert.Greater(t, bot.Score, 0.95)
	assert.ElementsMatch(t, []string{
		"immediate_interaction",
		"no_mouse_movement",
		"regular_typing_rhythm",
		"inhuman_typing_speed",
		"insufficient_time",
	}, bot.Triggers)
}

func TestBehavioralAnalyzer_MissingTelemetryIsNeutral(t *testing.T) {
	b := NewBehavioralAnalyzer(DefaultBehavioralConfig())

	res, err := b.Evaluate(context.Background(), &core.Submission{})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, "no telemetry", res.Reason)
}

func TestBehavioralAnalyzer_CopyPaste(t *testing.T) {
	b := NewBehavioralAnalyzer(DefaultBehavioralConfig())

	tel := humanTelemetry()
	tel.MouseMovements = 2
	tel.Keystrokes = 2
	tel.CopyPastes = 3
	res := evaluateTelemetry(t, b, tel)
	assert.Equal(t, []string{"excessive_copy_paste"}, res.Triggers)
	assert.InDelta(t, 0.4, res.Score, 1e-9)
}

func TestBehavioralAnalyzer_TimeOnPageScalesWithMessage(t *testing.T) {
	b := NewBehavioralAnalyzer(DefaultBehavioralConfig())

	tel := humanTelemetry()
	tel.TimeOnPage = 10
	sub := &core.Submission{
		Fields:    map[string]string{"message": string(make([]byte, 300))},
		Telemetry: tel,
	}
	res, err := b.Evaluate(context.Background(), sub)
	require.NoError(t, err)
	assert.Contains(t, res.Triggers, "insufficient_time")
}

// Moving any telemetry value towards the bot profile never lowers the score.
func TestBehavioralAnalyzer_MonotonicProperty(t *testing.T) {
	b := NewBehavioralAnalyzer(DefaultBehavioralConfig())
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	score := func(tel *core.BehavioralTelemetry) float64 {
		res, _ := b.Evaluate(context.Background(), &core.Submission{Telemetry: tel})
		return res.Score
	}

	properties.Property("bot-ward changes never lower the score", prop.ForAll(
		func(delay, speed, timeOnPage float64, mouse, keys, pastes int) bool {
			base := &core.BehavioralTelemetry{
				InteractionDelay: delay,
				MouseMovements:   mouse,
				Keystrokes:       keys,
				TypingSpeed:      speed,
				CopyPastes:       pastes,
				TimeOnPage:       timeOnPage,
			}
			worse := *base
			worse.InteractionDelay = delay / 10
			worse.TypingSpeed = speed * 3
			worse.TimeOnPage = timeOnPage / 10
			worse.MouseMovements = 0

			s0, s1 := score(base), score(&worse)
			return s0 >= 0 && s1 <= 1 && s1 >= s0
		},
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 300),
		gen.Float64Range(0, 120),
		gen.IntRange(0, 500),
		gen.IntRange(0, 500),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}
