package cse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/kirillkom/quarterly-financial-analyser/internal/core/domain"
	"github.com/kirillkom/quarterly-financial-analyser/internal/infrastructure/resilience"
)

const (
	userAgent = "quarterly-financial-analyser/1.0"
	// reportRowsSelector targets the quarterly reports table of the
	// company profile's financials tab.
	reportRowsSelector = `[id="21b"] table tbody tr td:nth-child(2) a`
	anyPDFSelector     = `a[href$=".pdf"], a[href$=".PDF"]`
	maxErrorBody       = 512
)

// Scraper lists and downloads interim report PDFs from a company profile page.
type Scraper struct {
	client *http.Client
	exec   *resilience.Executor
}

func New(client *http.Client, exec *resilience.Executor) *Scraper {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Scraper{client: client, exec: exec}
}

// ListReportLinks reads the company's reports page, or its profile page when
// no reports page is configured. The live CSE profile fills its financials
// tab from script, so a static fetch of it can come back without links.
func (s *Scraper) ListReportLinks(ctx context.Context, company domain.Company) ([]string, error) {
	profile := strings.TrimSpace(company.ReportsURL)
	if profile == "" {
		profile = strings.TrimSpace(company.ProfileURL)
	}
	if profile == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list report links", fmt.Errorf("company %s has no profile url", company.Symbol))
	}
	base, err := url.Parse(profile)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "list report links", err)
	}

	doc, err := resilience.Call(ctx, s.exec, "cse.profile", resilience.ClassifyTransport, func(ctx context.Context) (*goquery.Document, error) {
		resp, err := s.get(ctx, profile, "profile")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return goquery.NewDocumentFromReader(resp.Body)
	})
	if err != nil {
		return nil, resilience.MarkTemporary("fetch company profile", fmt.Errorf("fetch profile %s: %w", company.Symbol, err), nil)
	}

	links := collectPDFLinks(doc.Find(reportRowsSelector), base)
	if len(links) == 0 {
		links = collectPDFLinks(doc.Find(anyPDFSelector), base)
	}
	if len(links) == 0 {
		slog.Warn("no report links on page; set reports_url if the page renders client-side",
			"company", company.Symbol, "url", profile)
	}
	return links, nil
}

// Download buffers each attempt so a retried request never leaves a partial
// body in w.
func (s *Scraper) Download(ctx context.Context, link string, w io.Writer) error {
	body, err := resilience.Call(ctx, s.exec, "cse.download", resilience.ClassifyTransport, func(ctx context.Context) ([]byte, error) {
		resp, err := s.get(ctx, link, "download")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	})
	if err != nil {
		return resilience.MarkTemporary("download report", fmt.Errorf("download %s: %w", link, err), nil)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("write report %s: %w", link, err)
	}
	return nil
}

// get returns the response with its body open only on 2xx.
func (s *Scraper) get(ctx context.Context, target, operation string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &resilience.StatusError{
			Service:    "cse",
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}
	return resp, nil
}

func collectPDFLinks(sel *goquery.Selection, base *url.URL) []string {
	seen := make(map[string]struct{})
	var out []string
	sel.Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		href = strings.TrimSpace(href)
		if !ok || !strings.HasSuffix(strings.ToLower(href), ".pdf") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	})
	return out
}
