// Package export reads and writes catalog pairs as JSON, YAML or CSV files.
package export

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/kilupskalvis/qcat/internal/models"
)

// Format names a catalog file format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// ErrEmptyFile is returned when an upload holds no pairs.
var ErrEmptyFile = errors.New("empty file")

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatYAML, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported format %q (want json, yaml or csv)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot tell the format of %q without an extension", path)
	}
	return ParseFormat(ext)
}

// Decode reads pairs in format f. Ids in the input are kept but the
// server assigns new ones on upload.
func Decode(r io.Reader, f Format) ([]models.QAPair, error) {
	var (
		pairs []models.QAPair
		err   error
	)
	switch f {
	case FormatJSON:
		pairs, err = decodeJSON(r)
	case FormatYAML:
		pairs, err = decodeYAML(r)
	case FormatCSV:
		pairs, err = decodeCSV(r)
	default:
		return nil, fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f, err)
	}
	if len(pairs) == 0 {
		return nil, ErrEmptyFile
	}
	for i := range pairs {
		if pairs[i].Contexts == nil {
			pairs[i].Contexts = []string{}
		}
		if pairs[i].MetaData == nil {
			pairs[i].MetaData = map[string]any{}
		}
	}
	return pairs, nil
}

// Encode writes pairs in format f.
func Encode(w io.Writer, f Format, pairs []models.QAPair) error {
	var err error
	switch f {
	case FormatJSON:
		err = encodeJSON(w, pairs)
	case FormatYAML:
		err = encodeYAML(w, pairs)
	case FormatCSV:
		err = encodeCSV(w, pairs)
	default:
		return fmt.Errorf("unsupported format %q", f)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", f, err)
	}
	return nil
}
