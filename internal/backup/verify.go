package backup

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/tidwall/gjson"
)

// iniNames are INI-style files recognised by base name.
var iniNames = map[string]bool{
	".editorconfig": true,
	".flake8":       true,
	".pylintrc":     true,
	".gitconfig":    true,
}

// Verification is the result of checking one snapshot.
type Verification struct {
	ID       string
	Files    int
	Problems []string
}

// OK reports whether the snapshot passed every check.
func (v Verification) OK() bool { return len(v.Problems) == 0 }

// Verify checks snapshot id: it holds at least one file, every captured
// file is present with a matching digest, JSON and TOML files parse and
// INI-style files have a section header.
func (m *Manager) Verify(id string) (Verification, error) {
	meta, err := m.Metadata(id)
	if err != nil {
		return Verification{ID: id}, err
	}
	v := Verification{ID: meta.ID, Files: len(meta.Files)}
	if len(meta.Files) == 0 {
		v.Problems = append(v.Problems, "snapshot contains no files")
		return v, nil
	}

	root := filepath.Join(m.dir, meta.ID, filesDir)
	for _, f := range meta.Files {
		if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			v.Problems = append(v.Problems, fmt.Sprintf("%s: path escapes the project", f.Path))
			continue
		}
		path := filepath.Join(root, filepath.FromSlash(f.Path))
		data, err := os.ReadFile(path)
		if err != nil {
			v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", f.Path, err))
			continue
		}
		if f.Blake3 != "" {
			sum, err := digest(path)
			if err != nil {
				v.Problems = append(v.Problems, fmt.Sprintf("%s: %v", f.Path, err))
				continue
			}
			if sum != f.Blake3 {
				v.Problems = append(v.Problems, fmt.Sprintf("%s: checksum mismatch", f.Path))
			}
		}
		if problem := checkContent(f.Path, data); problem != "" {
			v.Problems = append(v.Problems, fmt.Sprintf("%s: %s", f.Path, problem))
		}
	}
	return v, nil
}

// checkContent validates a file by its type. It returns "" when the file
// is acceptable or of a type that is not checked.
func checkContent(path string, data []byte) string {
	base := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(base))
	switch {
	case ext == ".jsonc" || (ext == ".json" && isEditorSettings(path)):
		if !gjson.ValidBytes(standardizeJSONC(data)) {
			return "invalid JSON"
		}
	case ext == ".json":
		if !gjson.ValidBytes(data) {
			return "invalid JSON"
		}
	case ext == ".toml":
		var doc map[string]any
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return fmt.Sprintf("invalid TOML: %v", err)
		}
	case ext == ".ini" || ext == ".cfg" || iniNames[base]:
		if !hasSection(data) {
			return "no [section] header"
		}
	}
	return ""
}

func hasSection(data []byte) bool {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) > 2 && line[0] == '[' && line[len(line)-1] == ']' {
			return true
		}
	}
	return false
}

// isEditorSettings reports whether path is an editor settings file, which
// editors read as JSON with comments.
func isEditorSettings(path string) bool {
	return strings.HasPrefix(filepath.ToSlash(path), ".vscode/")
}

// standardizeJSONC drops // and /* */ comments and trailing commas so a
// JSON-with-comments document can be checked as plain JSON. String
// contents are left alone.
func standardizeJSONC(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i := 0; i < len(data); i++ {
		c := data[i]
		if inString {
			out = append(out, c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch {
		case c == '"':
			inString = true
			out = append(out, c)
		case c == '/' && i+1 < len(data) && data[i+1] == '/':
			for i < len(data) && data[i] != '\n' {
				i++
			}
			if i < len(data) {
				out = append(out, '\n')
			}
		case c == '/' && i+1 < len(data) && data[i+1] == '*':
			end := bytes.Index(data[i+2:], []byte("*/"))
			if end < 0 {
				// Unterminated comment; leave it for the validator to reject.
				return append(out, data[i:]...)
			}
			i += end + 3
			out = append(out, ' ')
		default:
			out = append(out, c)
		}
	}
	return dropTrailingCommas(out)
}

func dropTrailingCommas(data []byte) []byte {
	out := make([]byte, 0, len(data))
	inString, escaped := false, false
	for i, c := range data {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			out = append(out, c)
			continue
		}
		if c == '"' {
			inString = true
		}
		if c == ',' {
			if next := bytes.TrimLeft(data[i+1:], " \t\r\n"); len(next) > 0 && (next[0] == '}' || next[0] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}
