// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"github.com/pdiddy/scigraph/internal/httputil"
	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/pkg/types"
)

// MetaMap queries a MetaMapLite annotate endpoint for UMLS concepts.
type MetaMap struct {
	Client *http.Client

	// URL is the annotate endpoint, e.g.
	// http://localhost:8080/metamaplite/rest/annotate.
	URL string

	// Version is recorded as the source version of every entity.
	Version   string
	UserAgent string

	MaxRetries int
	Logger     *logging.Logger
}

// Annotation is one matched span with its candidate concepts.
type Annotation struct {
	MatchedText string `json:"matchedtext"`
	EvList      []struct {
		ConceptInfo struct {
			CUI           string `json:"cui"`
			PreferredName string `json:"preferredname"`
		} `json:"conceptinfo"`
	} `json:"evlist"`
}

// StatusError reports a non-2xx answer from the NER service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("metamaplite returned %d: %s", e.Status, e.Body)
}

// Annotate sends one text and returns the service's annotations.
func (m *MetaMap) Annotate(ctx context.Context, text string) ([]Annotation, error) {
	form := url.Values{
		"inputtext":    {text},
		"docformat":    {"freetext"},
		"resultformat": {"json"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "text/plain")
	if m.UserAgent != "" {
		req.Header.Set("User-Agent", m.UserAgent)
	}

	client := m.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, m.MaxRetries, m.Logger)
	if err != nil {
		return nil, fmt.Errorf("metamaplite request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var out []Annotation
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding metamaplite response: %w", err)
	}
	return out, nil
}

// conclusionPrefixes are stripped from the start of a conclusion before NER.
var conclusionPrefixes = []string{"conclusions", "conclusion"}

// StripConclusionPrefix removes a leading "conclusion(s)" heading.
func StripConclusionPrefix(text string) string {
	for _, p := range conclusionPrefixes {
		if len(text) >= len(p) && strings.EqualFold(text[:len(p)], p) {
			text = text[len(p):]
			break
		}
	}
	return strings.TrimLeft(text, " :.\n\t")
}

// Recognize emits the named entities of each conclusion. Rows the service
// rejects are logged and skipped; transport failures end the stream.
func (m *MetaMap) Recognize(ctx context.Context, in iter.Seq[types.SimpleSubstitutedConclusion]) iter.Seq2[types.NamedEntity, error] {
	log := logging.OrNop(m.Logger)
	return func(yield func(types.NamedEntity, error) bool) {
		for c := range in {
			if c.Error != "" {
				continue
			}
			text := StripConclusionPrefix(c.Conclusion)
			if text == "" {
				continue
			}
			anns, err := m.Annotate(ctx, text)
			if err != nil {
				var se *StatusError
				if errors.As(err, &se) {
					log.Warn("ner request rejected", "ss_conclusion_id", c.ID, "status", se.Status)
					continue
				}
				yield(types.NamedEntity{}, err)
				return
			}

			seen := make(map[[2]string]bool)
			for _, a := range anns {
				for _, ev := range a.EvList {
					key := [2]string{a.MatchedText, ev.ConceptInfo.CUI}
					if seen[key] {
						continue
					}
					seen[key] = true
					ne := types.NamedEntity{
						SSConclusionID: c.ID,
						MatchedTerm:    a.MatchedText,
						PreferredTerm:  ev.ConceptInfo.PreferredName,
						CUI:            ev.ConceptInfo.CUI,
						SourceVersion:  m.Version,
					}
					if !yield(ne, nil) {
						return
					}
				}
			}
		}
	}
}
