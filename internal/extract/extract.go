// Package extract turns raw conversational exchanges into memory
// candidates. Extraction is heuristic and best-effort: missed facts are
// acceptable, invented or empty facts are not.
package extract

import (
	"regexp"
	"strings"

	"github.com/recallhq/recall-service/internal/model"
)

// Candidate is a normalized fact proposed for storage. The service layer
// turns candidates into full records (ID, embedding, tier, TTL).
type Candidate struct {
	Content string
	Source  model.Source
}

// Extractor is the pluggable extraction strategy. Implementations must
// never emit a candidate with empty content, and must emit at least one
// explicit_save candidate for "remember that X" phrasing.
type Extractor interface {
	Extract(userMessage, assistantReply string) []Candidate
}

// maxContentLen caps a single candidate's content. Longer matches are cut
// at a word boundary.
const maxContentLen = 500

var explicitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:remember|don't forget|note)\s+that\s+(.+)`),
	regexp.MustCompile(`(?i)\bremember\s+(?:this|the following)?[:,]\s*(.+)`),
	regexp.MustCompile(`(?i)\bplease\s+remember\s+(.+)`),
}

var factPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is\s+.+`),
	regexp.MustCompile(`(?i)\b(?:you can )?call me\s+.+`),
	regexp.MustCompile(`(?i)\bi(?:'m| am)\s+(?:a|an|from)\s+.+`),
	regexp.MustCompile(`(?i)\bi live in\s+.+`),
	regexp.MustCompile(`(?i)\bi work (?:at|as|for)\s+.+`),
	regexp.MustCompile(`(?i)\bi (?:like|love|hate|prefer|enjoy|dislike)\s+.+`),
	regexp.MustCompile(`(?i)\bmy (?:favorite|favourite)\s+.+\s+is\s+.+`),
	regexp.MustCompile(`(?i)\bi(?:'m| am) allergic to\s+.+`),
	regexp.MustCompile(`(?i)\bmy birthday is\s+.+`),
	regexp.MustCompile(`(?i)\bmy\s+\w+(?:'s)?\s+name is\s+.+`),
}

var correctionPattern = regexp.MustCompile(`(?i)^(?:actually|no,|correction[:,])\s*(.+)`)

// HeuristicExtractor is the default pattern-based Extractor.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates the default extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract scans the user message for explicit save requests, stated facts
// and corrections. The assistant reply is currently ignored: facts about
// the user come from the user.
func (e *HeuristicExtractor) Extract(userMessage, _ string) []Candidate {
	var out []Candidate
	seen := map[string]bool{}
	add := func(content string, source model.Source) {
		content = Normalize(content)
		if content == "" {
			return
		}
		content = truncate(content)
		key := strings.ToLower(content)
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, Candidate{Content: content, Source: source})
	}

	for _, sentence := range splitSentences(userMessage) {
		matched := false
		for _, re := range explicitPatterns {
			if m := re.FindStringSubmatch(sentence); m != nil {
				add(m[1], model.SourceExplicitSave)
				matched = true
				break
			}
		}
		if matched {
			continue
		}
		if m := correctionPattern.FindStringSubmatch(sentence); m != nil {
			add(m[1], model.SourceConversation)
			continue
		}
		for _, re := range factPatterns {
			if loc := re.FindStringIndex(sentence); loc != nil {
				add(sentence[loc[0]:loc[1]], model.SourceConversation)
				break
			}
		}
	}
	return out
}

// Normalize collapses whitespace and trims surrounding punctuation. The
// same normalization feeds cache fingerprints so that formatting-only
// differences do not change keys.
func Normalize(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " .!?,;:")
}

func truncate(s string) string {
	if len(s) <= maxContentLen {
		return s
	}
	cut := s[:maxContentLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut
}

var sentenceSplit = regexp.MustCompile(`[.!?\n]+`)

func splitSentences(s string) []string {
	parts := sentenceSplit.Split(s, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var _ Extractor = (*HeuristicExtractor)(nil)
