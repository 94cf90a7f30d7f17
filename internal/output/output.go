// Package output encodes an inventory as JSON or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nmslite/hostgatherer/internal/worker"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Options controls the encoding.
type Options struct {
	Format string
	Pretty bool
}

// Write encodes inv to w. Map keys are emitted in sorted order by both encoders.
func Write(w io.Writer, inv worker.Inventory, opts Options) error {
	if inv == nil {
		inv = worker.Inventory{}
	}

	switch opts.Format {
	case "", FormatJSON:
		enc := json.NewEncoder(w)
		if opts.Pretty {
			enc.SetIndent("", "  ")
		}
		if err := enc.Encode(inv); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(inv); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("failed to close encoder: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported output format %q", opts.Format)
	}
}

// WriteFile writes inv to path through a temporary file renamed into place, so readers
// never observe a partial inventory. An empty path or "-" writes to stdout.
func WriteFile(path string, inv worker.Inventory, opts Options) error {
	if path == "" || path == "-" {
		return Write(os.Stdout, inv, opts)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := Write(tmp, inv, opts); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move inventory into place: %w", err)
	}
	return nil
}
