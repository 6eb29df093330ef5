// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"context"
	"fmt"
	"iter"
	"regexp"
	"strings"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/internal/store"
	"github.com/pdiddy/scigraph/pkg/types"
)

// Substitute replaces every whole-word occurrence of each abbreviation, and
// of its plural, with its meaning. Abbreviations are applied in order.
func Substitute(sentence string, abbrevs []types.Abbreviation) string {
	for _, a := range abbrevs {
		sentence = substituteWord(sentence, a)
	}
	return sentence
}

func substituteWord(sentence string, a types.Abbreviation) string {
	forms := []string{a.Abbreviation}
	if singular := strings.TrimRight(a.Abbreviation, "s"); singular != a.Abbreviation {
		forms = append(forms, singular)
	}
	for _, form := range forms {
		if form == "" {
			continue
		}
		re, err := regexp.Compile(`\b` + regexp.QuoteMeta(form) + `s?\b`)
		if err != nil {
			continue
		}
		sentence = re.ReplaceAllLiteralString(sentence, a.Meaning)
	}
	return sentence
}

// Substituter expands abbreviations in simplified conclusions using the
// abbreviations found for the conclusion's summary and article.
type Substituter struct {
	Store   *store.Store
	Version string
	Logger  *logging.Logger
}

// Transform emits one substituted conclusion per simplified conclusion.
// Failed upstream rows yield failed results.
func (st Substituter) Transform(ctx context.Context, in iter.Seq[types.SimpleConclusion]) iter.Seq2[types.Result[types.SimpleSubstitutedConclusion], error] {
	log := logging.OrNop(st.Logger)
	return func(yield func(types.Result[types.SimpleSubstitutedConclusion], error) bool) {
		var zero types.Result[types.SimpleSubstitutedConclusion]
		for sc := range in {
			out := types.SimpleSubstitutedConclusion{
				SimpleConclusionID: sc.ID,
				SummaryID:          sc.SummaryID,
				Version:            st.Version,
			}
			if sc.Error != "" {
				if !yield(types.Failed(out, "simplification failed: "+sc.Error), nil) {
					return
				}
				continue
			}

			summary, err := store.GetByID(ctx, st.Store, store.Summaries, sc.SummaryID)
			if err != nil {
				yield(zero, fmt.Errorf("loading summary %d: %w", sc.SummaryID, err))
				return
			}
			abbrevs, err := st.Store.AbbreviationsFor(ctx, summary)
			if err != nil {
				yield(zero, fmt.Errorf("loading abbreviations for summary %d: %w", sc.SummaryID, err))
				return
			}
			out.Conclusion = Substitute(sc.Conclusion, abbrevs)
			if out.Conclusion != sc.Conclusion {
				log.Debug("abbreviations substituted", "simple_conclusion_id", sc.ID, "abbreviations", len(abbrevs))
			}
			if !yield(types.Ok(out), nil) {
				return
			}
		}
	}
}

// stopClauses are boilerplate openings removed before simplification.
var stopClauses = []string{
	"conclusions",
	"conclusion",
	"in summary",
	"in conclusion,",
	"in fact,",
	"in addition",
	"our research shows that",
	"we demonstrated that",
	"we show that",
	"we found that",
}

// StripStopClauses removes leading boilerplate clauses and capitalizes the
// first letter of what remains.
func StripStopClauses(text string) string {
	text = strings.TrimSpace(text)
	for _, c := range stopClauses {
		if len(text) >= len(c) && strings.EqualFold(text[:len(c)], c) {
			text = strings.TrimSpace(strings.TrimLeft(text[len(c):], " :,."))
		}
	}
	if text == "" {
		return text
	}
	return strings.ToUpper(text[:1]) + text[1:]
}
