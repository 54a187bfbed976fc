package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/macroforge/macroforge/internal/sessionreader"
)

const sessionPollInterval = 3 * time.Second

// sessionLogPath resolves the on-disk path of sessionID's log file under
// reader's sessions directory for projectCwd. Session logs are named
// "<sessionID>.jsonl" by every agent type this engine has shipped a Reader
// for; a future agent type with a different naming scheme would extend
// Reader with a FilePath method rather than special-case it here.
func sessionLogPath(reader sessionreader.Reader, projectCwd, sessionID string) (string, error) {
	dir := reader.SessionsDir(projectCwd)
	path := filepath.Join(dir, sessionID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("executor: session log for %s: %w", sessionID, err)
	}
	return path, nil
}

// pollForNewSession scans dir for a *.jsonl file modified after since,
// returning the session id (filename without extension) of the match with
// the earliest modification time. Returns "" if none found yet.
func pollForNewSession(dir string, since time.Time) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var candidates []os.DirEntry
	for _, ent := range entries {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), ".jsonl") {
			continue
		}
		info, err := ent.Info()
		if err != nil || !info.ModTime().After(since) {
			continue
		}
		candidates = append(candidates, ent)
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.Slice(candidates, func(i, j int) bool {
		ii, _ := candidates[i].Info()
		jj, _ := candidates[j].Info()
		return ii.ModTime().Before(jj.ModTime())
	})
	name := candidates[0].Name()
	return strings.TrimSuffix(name, ".jsonl")
}

// runSessionPoller ticks every 3s (spec §4.6.1 step 7) until ctx is
// cancelled, calling onFound exactly once with the first detected session
// id, then stopping itself.
func runSessionPoller(ctx context.Context, dir string, since time.Time, onFound func(sessionID string)) {
	ticker := time.NewTicker(sessionPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id := pollForNewSession(dir, since); id != "" {
				onFound(id)
				return
			}
		}
	}
}
