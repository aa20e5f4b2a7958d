package extract

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall-service/internal/model"
)

func TestExtract_ExplicitSave(t *testing.T) {
	e := NewHeuristicExtractor()

	out := e.Extract("Please remember that my anniversary is June 3rd.", "Noted!")
	require.Len(t, out, 1)
	require.Equal(t, "my anniversary is June 3rd", out[0].Content)
	require.Equal(t, model.SourceExplicitSave, out[0].Source)
}

func TestExtract_FactPatterns(t *testing.T) {
	e := NewHeuristicExtractor()

	out := e.Extract("Hi! My name is Ada. I love hiking.", "Nice to meet you.")
	require.Len(t, out, 2)
	for _, c := range out {
		require.Equal(t, model.SourceConversation, c.Source)
		require.NotEmpty(t, c.Content)
	}
	require.Equal(t, "My name is Ada", out[0].Content)
	require.Equal(t, "I love hiking", out[1].Content)
}

func TestExtract_Correction(t *testing.T) {
	e := NewHeuristicExtractor()

	out := e.Extract("Actually, my office moved to Berlin", "")
	require.Len(t, out, 1)
	require.Equal(t, "my office moved to Berlin", out[0].Content)
	require.Equal(t, model.SourceConversation, out[0].Source)
}

func TestExtract_NothingWorthKeeping(t *testing.T) {
	e := NewHeuristicExtractor()

	require.Empty(t, e.Extract("What's the weather like today?", "Sunny, around 20C."))
	require.Empty(t, e.Extract("", ""))
}

func TestExtract_DeduplicatesWithinExchange(t *testing.T) {
	e := NewHeuristicExtractor()

	out := e.Extract("I live in Oslo. As I said, I live in Oslo!", "")
	require.Len(t, out, 1)
}

func TestExtract_TruncatesAtWordBoundary(t *testing.T) {
	e := NewHeuristicExtractor()

	long := "remember that " + strings.Repeat("verylongword ", 60)
	out := e.Extract(long, "")
	require.Len(t, out, 1)
	require.LessOrEqual(t, len(out[0].Content), 500)
	require.False(t, strings.HasSuffix(out[0].Content, " "))
	require.True(t, strings.HasSuffix(out[0].Content, "verylongword"))
}

func TestNormalize(t *testing.T) {
	require.Equal(t, "my name is Ada", Normalize("  my   name is\tAda.  "))
	require.Equal(t, "", Normalize(" ... "))
}
