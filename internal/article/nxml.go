// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package article reads JATS/NXML article files and article index CSVs.
package article

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Section name variants, lowercased. A section matches when its title or
// sec-type starts with one of them.
var (
	IntroductionNames = []string{"introduction", "background"}
	ConclusionNames   = []string{"conclusion", "conclusions", "summary", "discussion"}
)

// ResearchArticle is the only article type that is parsed.
const ResearchArticle = "research-article"

// ErrUnsupportedType is returned for articles that are not research articles.
var ErrUnsupportedType = errors.New("unsupported article type")

// ErrEmptySection is returned when a required section has no text.
var ErrEmptySection = errors.New("section is empty")

// Sections holds the text extracted from one article.
type Sections struct {
	Abstract     string
	Introduction string
	Conclusion   string
}

// element is a minimal ordered XML tree. Text nodes have an empty name.
type element struct {
	name     string
	attrs    map[string]string
	children []*element
	text     string
}

func (e *element) attr(name string) string { return e.attrs[name] }

// itertext joins the descendant text nodes with newlines.
func (e *element) itertext() string {
	var parts []string
	var walk func(*element)
	walk = func(n *element) {
		if n.name == "" {
			parts = append(parts, n.text)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(e)
	return strings.Join(parts, "\n")
}

// firstText is the first direct text child, as XPath text()[0] would see it.
func (e *element) firstText() string {
	for _, c := range e.children {
		if c.name == "" {
			return c.text
		}
	}
	return ""
}

func (e *element) findAll(name string) []*element {
	var out []*element
	var walk func(*element)
	walk = func(n *element) {
		for _, c := range n.children {
			if c.name == name {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(e)
	return out
}

func parseTree(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	doc := &element{name: "#document"}
	stack := []*element{doc}
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing article xml: %w", err)
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			el := &element{name: t.Name.Local, attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.attrs[a.Name.Local] = a.Value
			}
			top.children = append(top.children, el)
			stack = append(stack, el)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			top.children = append(top.children, &element{text: string(t)})
		}
	}
	return doc, nil
}

// Parse extracts the abstract, introduction and conclusion of a research
// article. Non-research articles fail with ErrUnsupportedType; articles
// missing one of the sections fail with ErrEmptySection.
func Parse(data []byte) (Sections, error) {
	doc, err := parseTree(data)
	if err != nil {
		return Sections{}, err
	}
	articles := doc.findAll("article")
	if len(articles) == 0 {
		return Sections{}, errors.New("no article element")
	}
	if typ := articles[0].attr("article-type"); typ != ResearchArticle {
		return Sections{}, fmt.Errorf("%w: %q", ErrUnsupportedType, typ)
	}

	s := Sections{
		Abstract:     joinText(doc.findAll("abstract")),
		Introduction: section(doc, IntroductionNames),
		Conclusion:   section(doc, ConclusionNames),
	}
	for _, f := range []struct{ name, text string }{
		{"Abstract", s.Abstract}, {"Introduction", s.Introduction}, {"Conclusion", s.Conclusion},
	} {
		if strings.TrimSpace(f.text) == "" {
			return s, fmt.Errorf("%w: %s", ErrEmptySection, f.name)
		}
	}
	return s, nil
}

func joinText(els []*element) string {
	parts := make([]string, 0, len(els))
	for _, e := range els {
		parts = append(parts, e.itertext())
	}
	return strings.Join(parts, "\n")
}

// section returns the text of the sections whose title, or failing that
// whose sec-type, starts with the first matching name. A leading section
// name is stripped from the text.
func section(doc *element, names []string) string {
	secs := doc.findAll("sec")
	matchers := []func(*element, string) bool{
		func(sec *element, name string) bool {
			for _, c := range sec.children {
				if c.name == "title" && strings.HasPrefix(strings.ToLower(c.firstText()), name) {
					return true
				}
			}
			return false
		},
		func(sec *element, name string) bool {
			return strings.HasPrefix(strings.ToLower(sec.attr("sec-type")), name)
		},
	}
	for _, match := range matchers {
		for _, name := range names {
			var hits []*element
			for _, sec := range secs {
				if match(sec, name) {
					hits = append(hits, sec)
				}
			}
			text := joinText(hits)
			if text == "" {
				continue
			}
			for i := len(names) - 1; i >= 0; i-- {
				if len(text) >= len(names[i]) && strings.EqualFold(text[:len(names[i])], names[i]) {
					text = text[len(names[i]):]
				}
			}
			return text
		}
	}
	return ""
}
