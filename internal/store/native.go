package store

import (
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/slmyyl/xpert-framework/internal/querysql"
)

// NativeQuery is SQL text loaded from a file, ready to bind.
type NativeQuery struct {
	Path string
	SQL  string
}

// Queries loads native query text from a file system. Loaded queries are
// cached by path.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Queries struct {
	fsys     fs.FS
	compiler *querysql.Compiler

	mu    sync.Mutex
	cache map[string]*NativeQuery
}

// NewQueries creates a provider over fsys whose text is written with ?
// placeholders and rebound for d.
func NewQueries(fsys fs.FS, d querysql.Dialect) *Queries {
	return &Queries{
		fsys:     fsys,
		compiler: querysql.NewCompiler(d),
		cache:    make(map[string]*NativeQuery),
	}
}

// Load returns the query stored at path. Leading "--" comment lines are
// dropped; the remaining text must not be empty.
func (q *Queries) Load(path string) (*NativeQuery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if nq, ok := q.cache[path]; ok {
		return nq, nil
	}

	raw, err := fs.ReadFile(q.fsys, path)
	if err != nil {
		return nil, fmt.Errorf("load native query %s: %w", path, err)
	}

	var lines []string
	for _, line := range strings.Split(string(raw), "\n") {
		trimmed := strings.TrimSpace(line)
		if len(lines) == 0 && (trimmed == "" || strings.HasPrefix(trimmed, "--")) {
			continue
		}
		lines = append(lines, strings.TrimRight(line, " \t\r"))
	}
	text := strings.TrimSpace(strings.Join(lines, "\n"))
	text = strings.TrimSuffix(text, ";")
	if text == "" {
		return nil, fmt.Errorf("load native query %s: file is empty", path)
	}

	nq := &NativeQuery{Path: path, SQL: q.compiler.Rebind(text)}
	q.cache[path] = nq
	return nq, nil
}
