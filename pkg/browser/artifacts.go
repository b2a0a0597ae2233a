package browser

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"

	"github.com/nextlevelbuilder/holdfast/pkg/driver"
)

const thumbnailWidth = 320

// artifacts captures diagnostic screenshots on final (non-recovered)
// failures. Capture problems are logged and swallowed: diagnostics
// must never turn a test failure into a different failure.
type artifacts struct {
	dir    string
	logger *slog.Logger
}

func newArtifacts(dir string, logger *slog.Logger) *artifacts {
	return &artifacts{dir: dir, logger: logger}
}

func (a *artifacts) captureFailure(ctx context.Context, drv driver.Driver, label string) {
	if a.dir == "" {
		return
	}
	buf, err := drv.Screenshot(ctx)
	if err != nil {
		a.logger.Warn("failure screenshot not captured", "label", label, "error", err)
		return
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		a.logger.Warn("artifacts dir not writable", "dir", a.dir, "error", err)
		return
	}

	stamp := time.Now().Format("20060102-150405.000")
	base := fmt.Sprintf("%s-%s", stamp, label)
	full := filepath.Join(a.dir, base+".png")
	if err := os.WriteFile(full, buf, 0o644); err != nil {
		a.logger.Warn("failure screenshot not written", "path", full, "error", err)
		return
	}

	// A small thumbnail makes report scanning cheap; skipping it on
	// decode trouble still leaves the full capture in place.
	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		a.logger.Debug("screenshot not decodable, skipping thumbnail", "error", err)
		a.logger.Info("failure screenshot captured", "path", full)
		return
	}
	thumb := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	thumbPath := filepath.Join(a.dir, base+".thumb.png")
	if err := imaging.Save(thumb, thumbPath); err != nil {
		a.logger.Debug("thumbnail not written", "path", thumbPath, "error", err)
	}
	a.logger.Info("failure screenshot captured", "path", full)
}
