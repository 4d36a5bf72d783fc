package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/pricewatch/engine"
)

// dumpPage saves a screenshot and the rendered HTML of page under dir so
// selector drift can be diagnosed. Failures are logged and ignored.
func dumpPage(ctx context.Context, dir, name string, page engine.Page) {
	if dir == "" || !page.Live() {
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("debug dump: create dir failed", "dir", dir, "error", err)
		return
	}
	base := filepath.Join(dir, fmt.Sprintf("%s-%s", name, time.Now().Format("20060102-150405")))

	if png, err := page.Screenshot(ctx); err == nil {
		if err := os.WriteFile(base+".png", png, 0o644); err != nil {
			slog.Warn("debug dump: write screenshot failed", "error", err)
		}
	} else {
		slog.Warn("debug dump: screenshot failed", "error", err)
	}

	if html, err := page.HTML(ctx); err == nil {
		if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
			slog.Warn("debug dump: write html failed", "error", err)
		}
	}
	slog.Info("debug dump written", "path", base)
}
