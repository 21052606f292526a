package duckduck

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kitbuilder587/boing-search/internal/search"
)

// rowsPerResult - каждая выдача в lite-версии занимает 4 строки:
// заголовок, сниппет, отображаемый url, разделитель.
const rowsPerResult = 4

var (
	ErrMissingRow    = errors.New("result row missing")
	ErrMissingAnchor = errors.New("title anchor missing")
	ErrMissingHref   = errors.New("title anchor has no href")
	ErrEmptyTitle    = errors.New("empty title")
)

// ChunkError describes one result block the parser had to skip.
type ChunkError struct {
	Table int
	Chunk int
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("table %d chunk %d: %v", e.Table, e.Chunk, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// Page is a parsed results page.
type Page struct {
	Response    *search.Response
	ChunkErrors []error
	// LayoutDrift is set when a results table has a row count that is not
	// a multiple of rowsPerResult.
	LayoutDrift bool
}

// ParsePage extracts records and the next-page token from a lite results page.
// Malformed blocks are skipped and reported in ChunkErrors.
func ParsePage(r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", search.ErrUpstreamDecode, err)
	}

	tables := doc.Find("table").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("a.result-link").Length() > 0
	})
	if tables.Length() == 0 {
		return nil, noTableError(doc)
	}

	page := &Page{Response: &search.Response{Records: []search.Record{}}}

	tables.Each(func(ti int, table *goquery.Selection) {
		// только строки этой таблицы, без вложенных
		rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(table)
		})
		n := rows.Length()
		if n%rowsPerResult != 0 {
			page.LayoutDrift = true
		}

		for start, chunk := 0, 0; start < n; start, chunk = start+rowsPerResult, chunk+1 {
			end := min(start+rowsPerResult, n)
			rec, err := parseChunk(rows.Slice(start, end))
			if err != nil {
				page.ChunkErrors = append(page.ChunkErrors, &ChunkError{Table: ti, Chunk: chunk, Err: err})
				continue
			}
			page.Response.Records = append(page.Response.Records, rec)
		}
	})

	page.Response.Continuation = parseNextForm(doc)
	return page, nil
}

func parseChunk(rows *goquery.Selection) (search.Record, error) {
	// разделитель в последнем блоке страницы бывает опущен
	if rows.Length() < 3 {
		return search.Record{}, ErrMissingRow
	}

	anchor := rows.Eq(0).Find("a").First()
	if anchor.Length() == 0 {
		return search.Record{}, ErrMissingAnchor
	}
	href, _ := anchor.Attr("href")
	link := strings.TrimSpace(resolveLink(strings.TrimSpace(href)))
	if link == "" {
		return search.Record{}, ErrMissingHref
	}
	title := strings.TrimSpace(anchor.Text())
	if title == "" {
		return search.Record{}, ErrEmptyTitle
	}

	return search.Record{
		Link:          link,
		Title:         title,
		Snippet:       collapseSpace(rows.Eq(1).Text()),
		DisplayedLink: collapseSpace(rows.Eq(2).Text()),
	}, nil
}

// resolveLink unwraps the redirect link: the destination is carried in the
// uddg parameter. Anything else is returned percent-decoded.
func resolveLink(href string) string {
	raw := href
	if strings.HasPrefix(raw, "//") {
		raw = "http:" + raw
	}
	if u, err := url.Parse(raw); err == nil {
		if dest := u.Query().Get("uddg"); dest != "" {
			return dest
		}
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		return decoded
	}
	return href
}

func parseNextForm(doc *goquery.Document) search.Token {
	var tok search.Token
	doc.Find("form.next_form > input[type=hidden]").Each(func(_ int, in *goquery.Selection) {
		name, ok := in.Attr("name")
		if !ok || name == "" {
			return
		}
		value, _ := in.Attr("value")
		tok = tok.With(name, value)
	})
	return tok
}

func noTableError(doc *goquery.Document) error {
	switch {
	case doc.Find("#challenge-form, .anomaly-modal__modal").Length() > 0:
		return fmt.Errorf("%w: challenge page", search.ErrNoResultsTable)
	case strings.Contains(doc.Find("body").Text(), "No results."):
		return fmt.Errorf("%w: upstream reports no results", search.ErrNoResultsTable)
	}
	return search.ErrNoResultsTable
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
