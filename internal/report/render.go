package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
)

var (
	headlessOnce sync.Once
	headlessErr  error
)

// EnsureHeadlessAvailable probes for a usable headless browser once per
// process. PNG rendering is skipped gracefully when none is installed.
func EnsureHeadlessAvailable(ctx context.Context) error {
	headlessOnce.Do(func() {
		targetCtx := ctx
		if targetCtx == nil {
			targetCtx = context.Background()
		}
		parent, cancel := chromedp.NewContext(targetCtx)
		defer cancel()
		headlessErr = chromedp.Run(parent)
	})
	return headlessErr
}

// RenderPNG rasterizes a rendered report page via headless Chrome.
func RenderPNG(ctx context.Context, html []byte) ([]byte, error) {
	if err := EnsureHeadlessAvailable(ctx); err != nil {
		return nil, fmt.Errorf("headless browser unavailable: %w", err)
	}
	return renderHTMLToPNG(ctx, html, chartWidthPx, 3*chartHeightPx+120)
}

func renderHTMLToPNG(ctx context.Context, html []byte, width, height int) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parent, cancel := chromedp.NewContext(ctx)
	defer cancel()

	timeoutCtx, cancelTimeout := context.WithTimeout(parent, 20*time.Second)
	defer cancelTimeout()

	dataURI := "data:text/html;base64," + base64.StdEncoding.EncodeToString(html)
	var screenshot []byte
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(width), int64(height)),
		chromedp.Navigate(dataURI),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(1500 * time.Millisecond),
		chromedp.FullScreenshot(&screenshot, 0),
	}
	if err := chromedp.Run(timeoutCtx, tasks...); err != nil {
		return nil, err
	}
	return screenshot, nil
}

// WriteFiles renders a run report into dir. The HTML page is always
// written; the PNG is added when a headless browser is present.
func WriteFiles(ctx context.Context, dir string, input Input) (htmlPath, pngPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	html, err := BuildHTML(input)
	if err != nil {
		return "", "", err
	}
	base := defaultReportName(input.Run.ID, time.Now())
	htmlPath = filepath.Join(dir, base+".html")
	if err := os.WriteFile(htmlPath, html, 0o644); err != nil {
		return "", "", err
	}
	png, pngErr := RenderPNG(ctx, html)
	if pngErr == nil {
		pngPath = filepath.Join(dir, base+".png")
		if err := os.WriteFile(pngPath, png, 0o644); err != nil {
			return htmlPath, "", err
		}
	}
	return htmlPath, pngPath, nil
}
