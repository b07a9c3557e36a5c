/**
 * Image Acquisition Adapter
 *
 * Wraps a Chooser (the platform picker) and folds everything that can happen
 * during selection into one of four outcomes. Images are read from disk under
 * a configured media root, checked to be decodable and transport-encoded as
 * base64. The adapter never times out: only the chooser's answer, or the end
 * of ctx, ends a request.
 */

package acquire

import (
	"bytes"
	"context"
	"encoding/base64"
	stderrors "errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	// Register decoders accepted by image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/imagetext/imagetext/internal/errors"
	"github.com/imagetext/imagetext/internal/logging"
)

// Adapter implements Picker on top of a Chooser and the local filesystem.
type Adapter struct {
	chooser    Chooser
	permission Permission
	root       string
	maxBytes   int64
	log        *logging.Logger
}

// AdapterConfig holds adapter configuration
type AdapterConfig struct {
	Chooser    Chooser
	Permission Permission // defaults to AlwaysGranted
	MediaRoot  string
	MaxBytes   int64
	Logger     *logging.Logger
}

// NewAdapter creates a new acquisition adapter
func NewAdapter(cfg *AdapterConfig) (*Adapter, error) {
	if cfg.Chooser == nil {
		return nil, fmt.Errorf("Chooser is required")
	}
	if cfg.MediaRoot == "" {
		return nil, fmt.Errorf("MediaRoot is required")
	}
	if cfg.MaxBytes <= 0 {
		return nil, fmt.Errorf("MaxBytes must be positive, got %d", cfg.MaxBytes)
	}

	root, err := filepath.Abs(cfg.MediaRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve media root: %w", err)
	}

	perm := cfg.Permission
	if perm == nil {
		perm = AlwaysGranted{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	return &Adapter{
		chooser:    cfg.Chooser,
		permission: perm,
		root:       filepath.Clean(root),
		maxBytes:   cfg.MaxBytes,
		log:        logger,
	}, nil
}

// Root returns the absolute media root.
func (a *Adapter) Root() string {
	return a.root
}

// RequestImage runs one picker interaction.
func (a *Adapter) RequestImage(ctx context.Context) Outcome {
	granted, err := a.permission.Request(ctx)
	if err != nil || !granted {
		if err != nil && ctx.Err() != nil {
			return Outcome{Kind: KindCancelled}
		}
		a.log.Warn("media access denied", "root", a.root, "error", err)
		return Outcome{Kind: KindPermissionDenied, Err: errors.NewPermissionError(a.root, err)}
	}

	path, err := a.chooser.Choose(ctx)
	if err != nil {
		if !stderrors.Is(err, ErrCancelled) {
			a.log.Warn("picker failed", "error", err)
		}
		a.log.Debug("selection cancelled")
		return Outcome{Kind: KindCancelled}
	}

	return a.load(path)
}

func (a *Adapter) load(path string) Outcome {
	resolved, err := a.resolve(path)
	if err != nil {
		a.log.Warn("path outside media root", "path", path)
		return Outcome{Kind: KindPermissionDenied, Err: errors.NewPermissionError(path, err)}
	}

	data, err := a.read(resolved)
	if err != nil {
		if stderrors.Is(err, fs.ErrPermission) {
			return Outcome{Kind: KindPermissionDenied, Err: errors.NewPermissionError(resolved, err)}
		}
		a.log.Warn("no payload", "path", resolved, "error", err)
		return Outcome{Kind: KindNoPayload, Err: errors.NewNoPayloadError(resolved, err.Error())}
	}

	if len(data) == 0 {
		return Outcome{Kind: KindNoPayload, Err: errors.NewNoPayloadError(resolved, "file is empty")}
	}

	format, err := sniffImage(data)
	if err != nil {
		a.log.Warn("no payload", "path", resolved, "error", err)
		return Outcome{Kind: KindNoPayload, Err: errors.NewNoPayloadError(resolved, "not a supported image")}
	}

	a.log.Info("image acquired", "path", resolved, "format", format, "bytes", len(data))
	return Outcome{
		Kind:       KindAcquired,
		DisplayRef: resolved,
		Payload:    base64.StdEncoding.EncodeToString(data),
	}
}

// resolve makes path absolute (relative paths are taken from the media root)
// and rejects anything that escapes the root, following symlinks.
func (a *Adapter) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(a.root, path)
	}
	path = filepath.Clean(path)

	target, err := filepath.EvalSymlinks(path)
	if err != nil {
		// Missing files are reported by read as NoPayload.
		target = path
		if dir, derr := filepath.EvalSymlinks(filepath.Dir(path)); derr == nil {
			target = filepath.Join(dir, filepath.Base(path))
		}
	}
	root, err := filepath.EvalSymlinks(a.root)
	if err != nil {
		root = a.root
	}

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside %s: %w", path, a.root, fs.ErrPermission)
	}
	return path, nil
}

func (a *Adapter) read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > a.maxBytes {
		return nil, fmt.Errorf("file is %d bytes, limit is %d", info.Size(), a.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(f, a.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > a.maxBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", a.maxBytes)
	}
	return data, nil
}

func sniffImage(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	return format, err
}
