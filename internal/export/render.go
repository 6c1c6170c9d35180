package export

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"casebook/api/internal/record"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Service renders assessment summary visuals via headless Chrome.
type Service struct{}

func NewService() *Service {
	return &Service{}
}

// RenderChartPNG rasterizes the case's chart/timeline summary to a PNG
// suitable for embedding next to the submitted record.
func (s *Service) RenderChartPNG(ctx context.Context, rec *record.CaseRecord) ([]byte, error) {
	html, err := RenderSummaryHTML(SummaryData(rec))
	if err != nil {
		return nil, fmt.Errorf("render summary template: %w", err)
	}

	var png []byte
	err = s.runChrome(ctx, html, chromedp.FullScreenshot(&png, 90))
	if err != nil {
		return nil, err
	}
	return png, nil
}

// RenderSummaryPDF produces a printable copy of the same summary.
func (s *Service) RenderSummaryPDF(ctx context.Context, rec *record.CaseRecord) (*Result, error) {
	html, err := RenderSummaryHTML(SummaryData(rec))
	if err != nil {
		return nil, fmt.Errorf("render summary template: %w", err)
	}

	var pdf []byte
	err = s.runChrome(ctx, html, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		pdf, _, err = page.PrintToPDF().
			WithPrintBackground(true).
			WithPaperWidth(8.5).
			WithPaperHeight(11.0).
			WithMarginTop(0.75).
			WithMarginBottom(0.75).
			WithMarginLeft(0.75).
			WithMarginRight(0.75).
			Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	return &Result{
		Data:     pdf,
		Filename: sanitizeFilename("summary-"+rec.CaseID) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

func (s *Service) runChrome(ctx context.Context, html string, action chromedp.Action) error {
	if _, err := exec.LookPath("chromium-browser"); err != nil {
		if _, fallbackErr := exec.LookPath("chromium"); fallbackErr != nil {
			return ErrChromeMissing
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	taskCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	dataURL := "data:text/html;charset=utf-8," + percentEncodeForDataURL(html)
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body"),
		action,
	); err != nil {
		return fmt.Errorf("chrome render failed: %w", err)
	}
	return nil
}

// percentEncodeForDataURL encodes for data URLs: spaces become %20, not the
// + that url.QueryEscape would produce.
func percentEncodeForDataURL(s string) string {
	var result strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '_', r == '.', r == '~':
			result.WriteRune(r)
		case r == ' ':
			result.WriteString("%20")
		default:
			for _, b := range []byte(string(r)) {
				result.WriteString(fmt.Sprintf("%%%02X", b))
			}
		}
	}
	return result.String()
}

func sanitizeFilename(title string) string {
	result := ""
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			result += string(r)
		case r == ' ':
			result += "-"
		case r == '-', r == '_':
			result += string(r)
		}
	}
	if len(result) > 50 {
		result = result[:50]
	}
	if result == "" {
		result = "summary"
	}
	return result
}
