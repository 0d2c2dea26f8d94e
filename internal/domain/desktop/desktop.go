// Package desktop indexes installed .desktop entries so window classes can
// be resolved to launch commands and desktop-entry ids.
package desktop

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"go.uber.org/zap"

	"github.com/thechief/rememberd/internal/infrastructure/logging"
)

// Entry is one parsed .desktop file.
type Entry struct {
	ID             string // file basename, e.g. org.mozilla.firefox.desktop
	Name           string
	Exec           string
	StartupWMClass string
	NoDisplay      bool
}

// Index maps window classes to desktop entries. Lookup order: declared
// StartupWMClass, then entry id stem, then entry name.
type Index struct {
	mu      sync.RWMutex
	byClass map[string]Entry
	byStem  map[string]Entry
	byName  map[string]Entry

	log *logging.Logger
}

// NewIndex creates an empty index.
func NewIndex(log *logging.Logger) *Index {
	return &Index{
		byClass: make(map[string]Entry),
		byStem:  make(map[string]Entry),
		byName:  make(map[string]Entry),
		log:     log.Named("desktop"),
	}
}

// DefaultDirs returns the XDG application directories in precedence order.
func DefaultDirs() []string {
	var dirs []string
	if home := os.Getenv("XDG_DATA_HOME"); home != "" {
		dirs = append(dirs, filepath.Join(home, "applications"))
	} else if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "share", "applications"))
	}
	data := os.Getenv("XDG_DATA_DIRS")
	if data == "" {
		data = "/usr/local/share:/usr/share"
	}
	for _, d := range strings.Split(data, ":") {
		if d != "" {
			dirs = append(dirs, filepath.Join(d, "applications"))
		}
	}
	return dirs
}

// Scan walks the given directories and indexes every .desktop file found.
// Earlier directories win on conflicts. Returns the number of entries
// indexed.
func (x *Index) Scan(dirs []string) int {
	count := 0
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		conf := fastwalk.Config{Follow: true}
		err := fastwalk.Walk(&conf, dir, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() || !strings.HasSuffix(path, ".desktop") {
				return nil
			}
			entry, perr := parseFile(path)
			if perr != nil {
				return nil
			}
			if x.add(entry) {
				count++
			}
			return nil
		})
		if err != nil {
			x.log.Warn("desktop scan failed", zap.String("dir", dir), zap.Error(err))
		}
	}
	x.log.Info("desktop entries indexed", zap.Int("count", count))
	return count
}

func (x *Index) add(e Entry) bool {
	x.mu.Lock()
	defer x.mu.Unlock()

	stem := strings.ToLower(strings.TrimSuffix(e.ID, ".desktop"))
	if _, dup := x.byStem[stem]; dup {
		return false // earlier directory already claimed it
	}
	x.byStem[stem] = e
	if e.StartupWMClass != "" {
		cls := strings.ToLower(e.StartupWMClass)
		if _, dup := x.byClass[cls]; !dup {
			x.byClass[cls] = e
		}
	}
	if e.Name != "" {
		name := strings.ToLower(e.Name)
		if _, dup := x.byName[name]; !dup {
			x.byName[name] = e
		}
	}
	return true
}

// ForClass resolves a window class to its desktop entry.
func (x *Index) ForClass(class string) (Entry, bool) {
	key := strings.ToLower(class)

	x.mu.RLock()
	defer x.mu.RUnlock()
	if e, ok := x.byClass[key]; ok {
		return e, true
	}
	if e, ok := x.byStem[key]; ok {
		return e, true
	}
	// Reverse-DNS ids: the last dot segment is usually the app name.
	for stem, e := range x.byStem {
		if idx := strings.LastIndex(stem, "."); idx >= 0 && stem[idx+1:] == key {
			return e, true
		}
	}
	if e, ok := x.byName[key]; ok {
		return e, true
	}
	return Entry{}, false
}

// ExecForClass returns the parsed launch command for a class, with desktop
// field codes stripped. Satisfies the orchestrator's fallback source.
func (x *Index) ExecForClass(class string) (string, []string, bool) {
	e, ok := x.ForClass(class)
	if !ok || e.Exec == "" || e.NoDisplay {
		return "", nil, false
	}
	parts := splitExec(e.Exec)
	if len(parts) == 0 {
		return "", nil, false
	}
	return parts[0], parts[1:], true
}

func parseFile(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	e := Entry{ID: filepath.Base(path)}
	inMain := false
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, "#"):
		case strings.HasPrefix(line, "["):
			inMain = line == "[Desktop Entry]"
		case inMain:
			key, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			switch strings.TrimSpace(key) {
			case "Name":
				if e.Name == "" {
					e.Name = strings.TrimSpace(value)
				}
			case "Exec":
				e.Exec = strings.TrimSpace(value)
			case "StartupWMClass":
				e.StartupWMClass = strings.TrimSpace(value)
			case "NoDisplay":
				e.NoDisplay = strings.TrimSpace(value) == "true"
			}
		}
	}
	return e, scanner.Err()
}

// splitExec tokenizes an Exec line, honoring double quotes and dropping the
// %f/%u style field codes.
func splitExec(exec string) []string {
	var out []string
	var cur strings.Builder
	inQuote := false
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		tok := cur.String()
		cur.Reset()
		if len(tok) == 2 && tok[0] == '%' {
			return
		}
		out = append(out, tok)
	}
	for _, r := range exec {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == ' ' && !inQuote:
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return out
}
