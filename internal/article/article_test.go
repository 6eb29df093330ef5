// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package article

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/scigraph/pkg/types"
)

const researchNXML = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE article PUBLIC "-//NLM//DTD JATS (Z39.96) Journal Archiving and Interchange DTD v1.0 20120330//EN" "JATS-archivearticle1.dtd">
<article article-type="research-article"><front><article-meta><abstract><p>Aspirin reduces pain.</p></abstract></article-meta></front><body><sec><title>Introduction</title><p>Headache &amp; migraine are common.</p></sec><sec sec-type="methods"><title>Methods</title><p>We did things.</p></sec><sec><title>Conclusions</title><p>Aspirin treats headache.</p></sec></body></article>`

func TestParse(t *testing.T) {
	s, err := Parse([]byte(researchNXML))
	require.NoError(t, err)
	assert.Equal(t, "Aspirin reduces pain.", s.Abstract)
	assert.Equal(t, "Headache & migraine are common.", strings.TrimSpace(s.Introduction))
	assert.Equal(t, "Aspirin treats headache.", strings.TrimSpace(s.Conclusion), "leading section name is stripped")
}

func TestParse_SecTypeFallback(t *testing.T) {
	doc := `<article article-type="research-article"><abstract><p>A.</p></abstract>` +
		`<sec sec-type="background"><p>Why.</p></sec>` +
		`<sec sec-type="discussion"><p>So it goes.</p></sec></article>`
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "Why.", s.Introduction)
	assert.Equal(t, "So it goes.", s.Conclusion)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr error
		msg     string
	}{
		{
			name:    "review article",
			doc:     `<article article-type="review-article"><abstract>x</abstract></article>`,
			wantErr: ErrUnsupportedType,
			msg:     "review-article",
		},
		{
			name:    "missing conclusion",
			doc:     `<article article-type="research-article"><abstract>x</abstract><sec><title>Background</title><p>y</p></sec></article>`,
			wantErr: ErrEmptySection,
			msg:     "Conclusion",
		},
		{
			name:    "missing abstract",
			doc:     `<article article-type="research-article"><sec><title>Introduction</title><p>y</p></sec></article>`,
			wantErr: ErrEmptySection,
			msg:     "Abstract",
		},
		{
			name: "no article element",
			doc:  `<book/>`,
			msg:  "no article element",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestSplitURI(t *testing.T) {
	tests := []struct {
		uri, path, member string
	}{
		{"data/a.nxml", "data/a.nxml", ""},
		{"data/pmc.tar.gz:PMC1/a.nxml", "data/pmc.tar.gz", "PMC1/a.nxml"},
		{"data/pmc.tgz:a.nxml", "data/pmc.tgz", "a.nxml"},
		{"data/pmc.tar:a.nxml", "data/pmc.tar", "a.nxml"},
		{"C:notes.txt", "C:notes.txt", ""},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			path, member := SplitURI(tt.uri)
			assert.Equal(t, tt.path, path)
			assert.Equal(t, tt.member, member)
		})
	}
}

func writeTar(t *testing.T, path string, gz bool, files map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body))}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	data := buf.Bytes()
	if gz {
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		_, err := zw.Write(data)
		require.NoError(t, err)
		require.NoError(t, zw.Close())
		data = zbuf.Bytes()
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestReadURI(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "a.nxml")
	require.NoError(t, os.WriteFile(plain, []byte("plain"), 0o644))
	writeTar(t, filepath.Join(dir, "set.tar"), false, map[string]string{"PMC1/a.nxml": "from tar"})
	writeTar(t, filepath.Join(dir, "set.tar.gz"), true, map[string]string{"./PMC2/b.nxml": "from tgz"})

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr error
	}{
		{name: "plain file", uri: plain, want: "plain"},
		{name: "tar member", uri: filepath.Join(dir, "set.tar") + ":PMC1/a.nxml", want: "from tar"},
		{name: "gzipped member with dot prefix", uri: filepath.Join(dir, "set.tar.gz") + ":PMC2/b.nxml", want: "from tgz"},
		{name: "missing member", uri: filepath.Join(dir, "set.tar") + ":nope.nxml", wantErr: ErrMemberNotFound},
		{name: "missing file", uri: filepath.Join(dir, "missing.nxml"), wantErr: os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadURI(tt.uri)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func collectIndex(t *testing.T, csvText, base string) ([]types.Article, error) {
	t.Helper()
	var out []types.Article
	for a, err := range ReadIndex(strings.NewReader(csvText), base) {
		if err != nil {
			return out, err
		}
		out = append(out, a)
	}
	return out, nil
}

func TestReadIndex(t *testing.T) {
	t.Run("doi and uri", func(t *testing.T) {
		got, err := collectIndex(t, "doi,uri\n10.1/a,a.nxml\n,/abs/b.nxml\n10.1/c,set.tar.gz:c.nxml\n10.1/d,\n", "/data")
		require.NoError(t, err)
		assert.Equal(t, []types.Article{
			{DOI: "10.1/a", URI: "/data/a.nxml"},
			{DOI: "/abs/b.nxml", URI: "/abs/b.nxml"},
			{DOI: "10.1/c", URI: "/data/set.tar.gz:c.nxml"},
		}, got)
	})

	t.Run("pmc ids", func(t *testing.T) {
		csvText := "Journal Title,ISSN,eISSN,Year,Volume,Issue,Page,DOI,PMCID,PMID\n" +
			"J,1,2,2020,1,1,1,10.1/x,PMC100,1\n" +
			"J,1,2,2020,1,1,1,,PMC200,2\n"
		got, err := collectIndex(t, csvText, "/pmc")
		require.NoError(t, err)
		assert.Equal(t, []types.Article{
			{DOI: "10.1/x", URI: "/pmc/PMC100.nxml"},
			{DOI: "PMC200", URI: "/pmc/PMC200.nxml"},
		}, got)
	})

	t.Run("unknown header", func(t *testing.T) {
		_, err := collectIndex(t, "name,path\nx,y\n", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "neither")
	})
}

func TestLoader(t *testing.T) {
	files := map[string]string{"ok.nxml": researchNXML, "review.nxml": `<article article-type="review-article"/>`}
	l := Loader{Read: func(uri string) ([]byte, error) {
		body, ok := files[uri]
		if !ok {
			return nil, os.ErrNotExist
		}
		return []byte(body), nil
	}}

	articles := []types.Article{
		{ID: 1, DOI: "10.1/ok", URI: "ok.nxml"},
		{ID: 2, DOI: "10.1/review", URI: "review.nxml"},
		{ID: 3, DOI: "10.1/missing", URI: "missing.nxml"},
	}
	var docs []Document
	for d := range l.Documents(context.Background(), func(yield func(types.Article) bool) {
		for _, a := range articles {
			if !yield(a) {
				return
			}
		}
	}) {
		docs = append(docs, d)
	}

	require.Len(t, docs, 3)
	assert.Empty(t, docs[0].Error)
	assert.EqualValues(t, 1, docs[0].ArticleID)
	assert.Equal(t, "Aspirin reduces pain.", docs[0].Abstract)
	assert.Contains(t, docs[1].Error, "unsupported article type")
	assert.Contains(t, docs[2].Error, "missing.nxml")
}

func TestIndex_SourceStep(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.csv")
	require.NoError(t, os.WriteFile(path, []byte("doi,uri\n10.1/a,a.nxml\n"), 0o644))

	var got []types.Article
	for a, err := range Index(path, "")(context.Background(), nil) {
		require.NoError(t, err)
		got = append(got, a)
	}
	assert.Equal(t, []types.Article{{DOI: "10.1/a", URI: filepath.Join(dir, "a.nxml")}}, got)

	for _, err := range Index(filepath.Join(dir, "none.csv"), "")(context.Background(), nil) {
		assert.Error(t, err)
	}
}
