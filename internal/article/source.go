// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package article

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/scigraph/internal/logging"
	"github.com/pdiddy/scigraph/pkg/types"
)

// ErrMemberNotFound is returned when an archive has no member of the
// requested name.
var ErrMemberNotFound = errors.New("archive member not found")

var archiveSuffixes = []string{".tar", ".tar.gz", ".tgz"}

// SplitURI splits "archive.tar.gz:member" into the archive path and member
// name. Plain paths return an empty member.
func SplitURI(uri string) (path, member string) {
	i := strings.LastIndex(uri, ":")
	if i < 0 {
		return uri, ""
	}
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(uri[:i], suffix) {
			return uri[:i], uri[i+1:]
		}
	}
	return uri, ""
}

// ReadURI returns the bytes of a plain file or of one tar archive member.
func ReadURI(uri string) ([]byte, error) {
	path, member := SplitURI(uri)
	if member == "" {
		return os.ReadFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if !strings.HasSuffix(path, ".tar") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("%w: %s in %s", ErrMemberNotFound, member, path)
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		if hdr.Name == member || strings.TrimPrefix(hdr.Name, "./") == member {
			return io.ReadAll(tr)
		}
	}
}

// ReadIndex streams articles from an index CSV. Two layouts are accepted:
// a "doi,uri" file, and the PMC-ids file whose DOI and PMCID columns name
// files "<PMCID>.nxml" under baseDir. Relative URIs resolve against baseDir.
// Rows without a DOI use their PMCID or URI as DOI.
func ReadIndex(r io.Reader, baseDir string) iter.Seq2[types.Article, error] {
	return func(yield func(types.Article, error) bool) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		header, err := cr.Read()
		if err != nil {
			yield(types.Article{}, fmt.Errorf("reading index header: %w", err))
			return
		}
		cols := make(map[string]int, len(header))
		for i, h := range header {
			cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
		}

		doiCol, uriCol, pmcCol := -1, -1, -1
		switch {
		case has(cols, "doi") && has(cols, "uri"):
			doiCol, uriCol = cols["doi"], cols["uri"]
		case has(cols, "DOI") && has(cols, "PMCID"):
			doiCol, pmcCol = cols["DOI"], cols["PMCID"]
		default:
			yield(types.Article{}, fmt.Errorf("index header %v has neither doi/uri nor DOI/PMCID columns", header))
			return
		}

		for line := 2; ; line++ {
			rec, err := cr.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(types.Article{}, fmt.Errorf("reading index line %d: %w", line, err))
				return
			}
			a := types.Article{DOI: field(rec, doiCol)}
			if pmcCol >= 0 {
				pmc := field(rec, pmcCol)
				if pmc == "" {
					continue
				}
				a.URI = filepath.Join(baseDir, pmc+".nxml")
				if a.DOI == "" {
					a.DOI = pmc
				}
			} else {
				a.URI = field(rec, uriCol)
				if a.URI == "" {
					continue
				}
				if p, m := SplitURI(a.URI); !filepath.IsAbs(p) && baseDir != "" {
					a.URI = filepath.Join(baseDir, p)
					if m != "" {
						a.URI += ":" + m
					}
				}
				if a.DOI == "" {
					a.DOI = a.URI
				}
			}
			if !yield(a, nil) {
				return
			}
		}
	}
}

func has(cols map[string]int, name string) bool {
	_, ok := cols[name]
	return ok
}

func field(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Document is a parsed article handed to the NLP collaborators. Error is
// set when the article could not be read or parsed.
type Document struct {
	ArticleID    int64  `json:"article_id"`
	DOI          string `json:"doi"`
	URI          string `json:"uri"`
	Abstract     string `json:"abstract,omitempty"`
	Introduction string `json:"introduction,omitempty"`
	Conclusion   string `json:"conclusion,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Loader turns article rows into documents.
type Loader struct {
	// Read returns the raw article bytes. Defaults to ReadURI.
	Read   func(uri string) ([]byte, error)
	Logger *logging.Logger
}

// Load reads and parses one article. Failures are recorded on the document.
func (l Loader) Load(a types.Article) Document {
	doc := Document{ArticleID: a.ID, DOI: a.DOI, URI: a.URI}
	read := l.Read
	if read == nil {
		read = ReadURI
	}
	data, err := read(a.URI)
	if err != nil {
		doc.Error = fmt.Sprintf("%s - %v", a.URI, err)
		return doc
	}
	s, err := Parse(data)
	if err != nil {
		doc.Error = fmt.Sprintf("%s - %v", a.URI, err)
		return doc
	}
	doc.Abstract, doc.Introduction, doc.Conclusion = s.Abstract, s.Introduction, s.Conclusion
	return doc
}

// Documents loads each article in turn.
func (l Loader) Documents(ctx context.Context, articles iter.Seq[types.Article]) iter.Seq[Document] {
	log := logging.OrNop(l.Logger)
	return func(yield func(Document) bool) {
		for a := range articles {
			if ctx.Err() != nil {
				return
			}
			doc := l.Load(a)
			if doc.Error != "" {
				log.Info("article not parsed", "article_id", a.ID, "error", doc.Error)
			}
			if !yield(doc) {
				return
			}
		}
	}
}

// Index returns a source transformation that emits the articles listed in
// the index file at path. Relative article paths resolve against baseDir,
// or the index's directory when baseDir is empty.
func Index(path, baseDir string) func(ctx context.Context, _ iter.Seq[types.Article]) iter.Seq2[types.Article, error] {
	return func(ctx context.Context, _ iter.Seq[types.Article]) iter.Seq2[types.Article, error] {
		return func(yield func(types.Article, error) bool) {
			f, err := os.Open(path)
			if err != nil {
				yield(types.Article{}, fmt.Errorf("opening index: %w", err))
				return
			}
			defer f.Close()
			dir := baseDir
			if dir == "" {
				dir = filepath.Dir(path)
			}
			for a, err := range ReadIndex(f, dir) {
				if err == nil {
					err = ctx.Err()
				}
				if !yield(a, err) || err != nil {
					return
				}
			}
		}
	}
}
