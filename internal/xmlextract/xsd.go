package xmlextract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"kenshin-ingest/internal/cda"
	kerrors "kenshin-ingest/internal/errors"

	xsdvalidate "github.com/terminalstatic/go-xsd-validate"
)

// XSDResolver implements §4.G step 5: resolve a schema document from the
// CDA's own xsi:schemaLocation hint (falling back to a default file name),
// and validate against it if and only if that file exists under xsdRoot.
// Handles are cached per schema file for the stage's lifetime and freed by
// Close.
type XSDResolver struct {
	root        string
	defaultName string

	mu       sync.Mutex
	handles  map[string]*xsdvalidate.XsdHandler
}

func NewXSDResolver(root, defaultName string) (*XSDResolver, error) {
	if root == "" {
		return nil, nil
	}
	if err := xsdvalidate.Init(); err != nil {
		return nil, fmt.Errorf("xsd: libxml2 init: %w", err)
	}
	return &XSDResolver{root: root, defaultName: defaultName, handles: make(map[string]*xsdvalidate.XsdHandler)}, nil
}

func (x *XSDResolver) Close() {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, h := range x.handles {
		h.Free()
	}
	xsdvalidate.Cleanup()
}

// Validate returns (valid, message, skip). skip=true means no schema file
// could be resolved, which is not itself a validation failure.
func (x *XSDResolver) Validate(root *cda.Node, data []byte) (valid bool, message string, skip bool) {
	schemaFile := x.resolveSchemaFile(root)
	if schemaFile == "" {
		return false, "", true
	}

	handler, err := x.handlerFor(schemaFile)
	if err != nil {
		return false, kerrors.Shorten(err.Error(), 300), false
	}

	if err := handler.ValidateMem(data, xsdvalidate.ParsErrDefault); err != nil {
		return false, firstThreeErrors(err), false
	}
	return true, "", false
}

func (x *XSDResolver) handlerFor(schemaFile string) (*xsdvalidate.XsdHandler, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if h, ok := x.handles[schemaFile]; ok {
		return h, nil
	}
	h, err := xsdvalidate.NewXsdHandlerUrl(schemaFile, xsdvalidate.ParsErrDefault)
	if err != nil {
		return nil, err
	}
	x.handles[schemaFile] = h
	return h, nil
}

// resolveSchemaFile reads xsi:schemaLocation off the root element, takes
// its last whitespace-separated ".xsd" token, and checks it (or the
// configured default file name) exists under x.root.
func (x *XSDResolver) resolveSchemaFile(root *cda.Node) string {
	if loc, ok := root.Attr("schemaLocation"); ok {
		tokens := strings.Fields(loc)
		for i := len(tokens) - 1; i >= 0; i-- {
			if strings.HasSuffix(strings.ToLower(tokens[i]), ".xsd") {
				candidate := filepath.Join(x.root, filepath.Base(tokens[i]))
				if fileExists(candidate) {
					return candidate
				}
			}
		}
	}
	if x.defaultName != "" {
		candidate := filepath.Join(x.root, x.defaultName)
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// firstThreeErrors keeps only the first three schema validation errors,
// each truncated, mirroring the original extraction code's error-message
// bounding (§4.G step 5).
func firstThreeErrors(err error) string {
	lines := strings.Split(err.Error(), "\n")
	if len(lines) > 3 {
		lines = lines[:3]
	}
	for i, l := range lines {
		lines[i] = kerrors.Shorten(l, 200)
	}
	return strings.Join(lines, "; ")
}
