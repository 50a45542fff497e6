// Package capture writes paired HTML+screenshot snapshots of the current
// page at failure points, for offline analysis. Capture failures are logged
// and swallowed: diagnostics must never take down a probe.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Snapshotter is the page surface capture needs: serialised DOM and a
// rendered screenshot.
type Snapshotter interface {
	HTML(ctx context.Context) (string, error)
	Screenshot(ctx context.Context) ([]byte, error)
}

// Capturer writes snapshots into a fixed diagnostics directory.
type Capturer struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Capturer writing into dir.
func New(dir string, logger *slog.Logger) *Capturer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{dir: dir, logger: logger, now: time.Now}
}

// Save writes <tag>_<unix>.html and <tag>_<unix>.png for the current page.
// It returns the written paths; a path is empty if that half failed. Errors
// are logged, never returned.
func (c *Capturer) Save(ctx context.Context, page Snapshotter, tag string) (htmlPath, pngPath string) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("capture: mkdir failed", "dir", c.dir, "error", err)
		return "", ""
	}

	stamp := c.now().Unix()
	base := filepath.Join(c.dir, fmt.Sprintf("%s_%d", sanitize(tag), stamp))

	if html, err := page.HTML(ctx); err != nil {
		c.logger.Warn("capture: read page html failed", "tag", tag, "error", err)
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		c.logger.Warn("capture: write html failed", "path", base+".html", "error", err)
	} else {
		htmlPath = base + ".html"
		c.logger.Info("capture: page saved", "path", htmlPath)
	}

	if png, err := page.Screenshot(ctx); err != nil {
		c.logger.Warn("capture: screenshot failed", "tag", tag, "error", err)
	} else if err := os.WriteFile(base+".png", png, 0o644); err != nil {
		c.logger.Warn("capture: write screenshot failed", "path", base+".png", "error", err)
	} else {
		pngPath = base + ".png"
		c.logger.Info("capture: screenshot saved", "path", pngPath)
	}

	return htmlPath, pngPath
}

// SavePage writes the page HTML under a descriptive prefix, used for the
// final booking confirmation page rather than a failure. Returns the path,
// or empty on failure.
func (c *Capturer) SavePage(ctx context.Context, page Snapshotter, prefix string) string {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("capture: mkdir failed", "dir", c.dir, "error", err)
		return ""
	}

	html, err := page.HTML(ctx)
	if err != nil {
		c.logger.Warn("capture: read page html failed", "prefix", prefix, "error", err)
		return ""
	}

	path := filepath.Join(c.dir, fmt.Sprintf("%s_%d.html", sanitize(prefix), c.now().Unix()))
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		c.logger.Warn("capture: write html failed", "path", path, "error", err)
		return ""
	}
	return path
}

// sanitize makes a tag safe for use in a filename.
func sanitize(tag string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, tag)
}
