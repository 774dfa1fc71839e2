// Package prompt expands PARLEY_LOAD_FILE directives in prompt text with
// the contents of workspace files.
package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

// directivePattern matches PARLEY_LOAD_FILE(relative/path.md or glob) on a
// line of its own.
var directivePattern = regexp.MustCompile(`(?m)^PARLEY_LOAD_FILE\((.+)\)$`)

// Expander rewrites prompt text rooted at a workspace directory. Matched
// files outside the workspace are ignored.
type Expander struct {
	dir    string
	logger *zap.Logger
}

// Option configures an Expander.
type Option func(*Expander)

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Expander) {
		e.logger = logger
	}
}

// New creates an Expander rooted at dir.
func New(dir string, opts ...Option) *Expander {
	e := &Expander{dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Expand replaces every whole-line PARLEY_LOAD_FILE(pattern) directive with
// the contents of the files matching the glob pattern, each wrapped in a
// tag naming its path. Directives that match nothing expand to an empty
// string; the prompt itself never fails.
func (e *Expander) Expand(prompt string) string {
	return directivePattern.ReplaceAllStringFunc(prompt, e.replace)
}

func (e *Expander) replace(directive string) string {
	pattern := strings.TrimSpace(directivePattern.FindStringSubmatch(directive)[1])

	matches, err := doublestar.Glob(os.DirFS(e.dir), pattern)
	if err != nil {
		e.logger.Warn("bad file pattern", zap.String("pattern", pattern), zap.Error(err))
		return ""
	}
	sort.Strings(matches)

	root, err := filepath.EvalSymlinks(e.dir)
	if err != nil {
		e.logger.Warn("resolve working directory", zap.String("dir", e.dir), zap.Error(err))
		return ""
	}

	var b strings.Builder
	for _, match := range matches {
		path := filepath.Join(e.dir, filepath.FromSlash(match))

		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			e.logger.Warn("resolve matched path", zap.String("path", path), zap.Error(err))
			continue
		}
		if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
			e.logger.Info("ignoring path outside the workspace", zap.String("path", path))
			continue
		}

		info, err := os.Stat(resolved)
		if err != nil || !info.Mode().IsRegular() {
			e.logger.Info("ignoring non-file path", zap.String("path", path))
			continue
		}

		content, err := os.ReadFile(resolved)
		if err != nil {
			e.logger.Warn("load prompt file", zap.String("path", path), zap.Error(err))
			continue
		}

		fmt.Fprintf(&b, "\n<parley-expanded-file %q>\n", path)
		b.Write(content)
		fmt.Fprintf(&b, "\n</parley-expanded-file %q>\n\n", path)
	}

	if b.Len() == 0 {
		e.logger.Info("no files matched prompt pattern", zap.String("pattern", pattern))
	}
	return b.String()
}
