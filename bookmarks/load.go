package bookmarks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
)

// Input formats accepted by Load.
const (
	FormatAuto = "auto"
	FormatJSON = "json"
	FormatHTML = "html"
)

// Load decodes an export in the given format and flattens it. FormatAuto
// picks JSON when the first non-space byte is '{' and HTML when it is '<'.
func Load(ctx context.Context, format string, data []byte) ([]Leaf, error) {
	format, err := resolveFormat(format, data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	default:
		return NewHTMLImporter().Import(ctx, data)
	}
}

// LoadFile is Load for an export on disk. HTML exports are read by the
// collector straight from the file.
func LoadFile(ctx context.Context, importer *HTMLImporter, format, path string) ([]Leaf, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	format, err = resolveFormat(format, data)
	if err != nil {
		return nil, err
	}
	switch format {
	case FormatJSON:
		return decodeJSON(data)
	default:
		if importer == nil {
			importer = NewHTMLImporter()
		}
		return importer.ImportFile(ctx, path)
	}
}

func resolveFormat(format string, data []byte) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" || format == FormatAuto {
		return Sniff(data)
	}
	if format != FormatJSON && format != FormatHTML {
		return "", fmt.Errorf("unsupported input format %q", format)
	}
	return format, nil
}

func decodeJSON(data []byte) ([]Leaf, error) {
	root, err := DecodeFirefox(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return root.Flatten(), nil
}

// Sniff guesses the format of an export from its first non-space byte.
func Sniff(data []byte) (string, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\ufeff")
	if len(trimmed) == 0 {
		return "", fmt.Errorf("%w: empty input", ErrMalformedTree)
	}
	switch trimmed[0] {
	case '{':
		return FormatJSON, nil
	case '<':
		return FormatHTML, nil
	default:
		return "", fmt.Errorf("%w: cannot detect format from leading %q", ErrMalformedTree, trimmed[0])
	}
}
