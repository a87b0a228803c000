package host

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ZenLiuCN/fn"
	"github.com/pkg/errors"
	"github.com/shibukawa/configdir"
)

const symbolFile = "symbols"

// ParseSymbols reads "name address" lines. Blank lines and # comments are skipped.
// Addresses take any Go integer prefix (0x, 0o, 0b).
func ParseSymbols(r io.Reader) (map[string]uint64, error) {
	out := make(map[string]uint64)
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, errors.Errorf("line %d: want \"name address\", got %q", line, scanner.Text())
		}
		addr, err := strconv.ParseUint(fields[1], 0, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		out[fields[0]] = addr
	}
	return out, errors.WithStack(scanner.Err())
}

func LoadSymbolFile(path string) (map[string]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer fn.IgnoreClose(f)
	syms, err := ParseSymbols(f)
	return syms, errors.Wrapf(err, "reading %s", path)
}

// DefaultSymbols merges the per-user and system symbol maps, if any exist.
// Earlier (more local) folders win.
func DefaultSymbols() (map[string]uint64, error) {
	out := make(map[string]uint64)
	folders := configdir.New("qbdl", "").QueryFolders(configdir.All)
	for i := len(folders) - 1; i >= 0; i-- {
		data, err := folders[i].ReadFile(symbolFile)
		if err != nil {
			continue
		}
		syms, err := ParseSymbols(strings.NewReader(string(data)))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", folders[i].Path)
		}
		for name, addr := range syms {
			out[name] = addr
		}
	}
	return out, nil
}

// AddSymbols loads path, or the default symbol maps if path is empty, into s.Symbols.
func (s *System) AddSymbols(path string) error {
	var syms map[string]uint64
	var err error
	if path == "" {
		syms, err = DefaultSymbols()
	} else {
		syms, err = LoadSymbolFile(path)
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, addr := range syms {
		s.Symbols[name] = addr
	}
	return nil
}
