package notebook

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Open returns the right adapter for a document based on its extension:
// .ipynb for Jupyter, .py for marimo.
func Open(path string) (Adapter, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ipynb":
		return OpenJupyter(path)
	case ".py":
		return OpenMarimo(path)
	default:
		return nil, fmt.Errorf("%w %q (supported: .ipynb, .py)", ErrUnsupportedFormat, filepath.Ext(path))
	}
}
