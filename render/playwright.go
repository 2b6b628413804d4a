package render

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/flanksource/tabloide/svg"
)

// Playwright prints SVG through headless Chromium. It is the last resort
// when no native converter is installed and is only registered on request.
type Playwright struct {
	// Install downloads Chromium on first use.
	Install bool

	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
}

func (c *Playwright) Name() string { return "playwright" }

func (c *Playwright) IsAvailable() bool { return true }

func (c *Playwright) SupportedFormats() []string {
	return []string{"pdf", "png"}
}

func (c *Playwright) start() error {
	if c.browser != nil {
		return nil
	}
	if c.Install {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			return converterError(c.Name(), "install browsers", err)
		}
	}
	pw, err := playwright.Run()
	if err != nil {
		return converterError(c.Name(), "start playwright", err)
	}
	browser, err := pw.Chromium.Launch()
	if err != nil {
		_ = pw.Stop()
		return converterError(c.Name(), "launch browser", err)
	}
	c.pw, c.browser = pw, browser
	return nil
}

func (c *Playwright) Convert(ctx context.Context, svgPath, outputPath string, opts *ConvertOptions) error {
	if opts == nil {
		opts = DefaultConvertOptions()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.start(); err != nil {
		return err
	}

	content, err := os.ReadFile(svgPath)
	if err != nil {
		return converterError(c.Name(), "read SVG", err)
	}
	doc, err := svg.ParseBytes(content)
	if err != nil {
		return converterError(c.Name(), "read SVG", err)
	}
	width := doc.Root.AttrOr("width", "210mm")
	height := doc.Root.AttrOr("height", "297mm")

	page, err := c.browser.NewPage()
	if err != nil {
		return converterError(c.Name(), "create page", err)
	}
	defer page.Close()

	html := fmt.Sprintf(`<!DOCTYPE html>
<html><head><meta charset="utf-8">
<style>@page { size: %s %s; margin: 0 } body { margin: 0 } svg { display: block }</style>
</head><body>%s</body></html>`, width, height, doc.Root.Markup())
	if err := page.SetContent(html); err != nil {
		return converterError(c.Name(), "set content", err)
	}

	switch strings.ToLower(opts.Format) {
	case "pdf":
		printBackground := true
		_, err = page.PDF(playwright.PagePdfOptions{
			Path:            &outputPath,
			Width:           &width,
			Height:          &height,
			PrintBackground: &printBackground,
		})
		if err != nil {
			return converterError(c.Name(), "generate PDF", err)
		}
	case "png":
		if opts.Width > 0 && opts.Height > 0 {
			if err := page.SetViewportSize(opts.Width, opts.Height); err != nil {
				return converterError(c.Name(), "set viewport", err)
			}
		}
		if _, err := page.Screenshot(playwright.PageScreenshotOptions{Path: &outputPath, Type: playwright.ScreenshotTypePng}); err != nil {
			return converterError(c.Name(), "screenshot PNG", err)
		}
	default:
		return converterError(c.Name(), "convert", fmt.Errorf("unsupported format: %s", opts.Format))
	}
	return nil
}

func (c *Playwright) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			return err
		}
		c.browser = nil
	}
	if c.pw != nil {
		if err := c.pw.Stop(); err != nil {
			return err
		}
		c.pw = nil
	}
	return nil
}
