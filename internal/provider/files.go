package provider

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/charliek/catview/internal/config"
	"github.com/charliek/catview/internal/constants"
	"github.com/charliek/catview/internal/domain"
)

// CompressedSuffix selects zstd compression for exports and imports
const CompressedSuffix = ".zst"

// ExportPath resolves where an export named suggested is written. Relative
// names land in dir, or the working directory when dir is empty.
func ExportPath(dir, suggested string) string {
	name := strings.TrimSpace(suggested)
	if name == "" {
		name = constants.DefaultExportFilename
	}
	name = config.ExpandHome(name)
	if filepath.IsAbs(name) {
		return name
	}
	if dir == "" {
		return name
	}
	return filepath.Join(config.ExpandHome(dir), name)
}

// WriteExport writes text to path, zstd compressed when path ends in .zst
func WriteExport(path, text string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
		}
	}

	data := []byte(text)
	if strings.HasSuffix(path, CompressedSuffix) {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
		}
		data = enc.EncodeAll(data, make([]byte, 0, len(data)/4))
		enc.Close()
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrExportFailed, err)
	}
	return nil
}

// ReadImport reads a log file, decompressing .zst files
func ReadImport(path string) (string, error) {
	f, err := os.Open(config.ExpandHome(path))
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, CompressedSuffix) {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrImportFailed, err)
	}
	return string(data), nil
}

// TailLines keeps the last max lines of text
func TailLines(text string, max int) string {
	if max <= 0 {
		return text
	}
	trimmed := strings.TrimSuffix(text, "\n")
	count := 0
	for i := len(trimmed) - 1; i >= 0; i-- {
		if trimmed[i] != '\n' {
			continue
		}
		count++
		if count == max {
			return text[i+1:]
		}
	}
	return text
}
