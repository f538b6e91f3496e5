package bootstrap

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// gitignoreEntries keep run-local files out of version control. Config and
// markers stay tracked so a clone knows what has been bootstrapped.
var gitignoreEntries = []string{
	"# kickoff",
	".kickoff/backups/",
	".kickoff/run.pid",
	".kickoff/run.pid.lock",
	".kickoff/state.yaml",
}

// updateGitignore appends missing entries and reports whether it wrote any.
func updateGitignore(workDir string) (bool, error) {
	path := filepath.Join(workDir, ".gitignore")

	existing := make(map[string]bool)
	if file, err := os.Open(path); err == nil {
		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			existing[strings.TrimSpace(scanner.Text())] = true
		}
		err := scanner.Err()
		file.Close()
		if err != nil {
			return false, fmt.Errorf("read .gitignore: %w", err)
		}
	}

	var toAdd []string
	for _, entry := range gitignoreEntries {
		if !existing[entry] {
			toAdd = append(toAdd, entry)
		}
	}
	if len(toAdd) == 0 || (len(toAdd) == 1 && strings.HasPrefix(toAdd[0], "#")) {
		return false, nil
	}

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return false, fmt.Errorf("open .gitignore: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return false, fmt.Errorf("stat .gitignore: %w", err)
	}
	var b strings.Builder
	if info.Size() > 0 {
		b.WriteString("\n")
	}
	for _, entry := range toAdd {
		b.WriteString(entry + "\n")
	}
	if _, err := file.WriteString(b.String()); err != nil {
		return false, fmt.Errorf("write .gitignore: %w", err)
	}
	return true, nil
}
