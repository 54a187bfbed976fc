package recovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/macroforge/macroforge/internal/runner"
	"github.com/macroforge/macroforge/internal/sessionreader"
)

// liveness is the three-way classification an execution resolves to, per
// spec §4.7.1.
type liveness int

const (
	statusAlive liveness = iota
	statusSilentlyCompleted
	statusTrulyDead
)

// classify implements the Alive / Silently-completed / Truly-dead decision:
// a recorded PID that still responds to a zero-signal probe, or a session
// log file whose mtime falls within window, counts as alive. Otherwise a
// session file that exists at all (however stale) means the process
// finished without ever reporting back. No pid and no session file means
// it is gone without a trace.
func classify(pid *int, reader sessionreader.Reader, projectCwd, sessionID string, window time.Duration, now time.Time) liveness {
	if pid != nil && runner.IsAlive(*pid) {
		return statusAlive
	}
	if reader == nil || sessionID == "" {
		return statusTrulyDead
	}
	mtime, ok := sessionMTime(reader, projectCwd, sessionID)
	if !ok {
		return statusTrulyDead
	}
	if now.Sub(mtime) <= window {
		return statusAlive
	}
	return statusSilentlyCompleted
}

// sessionMTime stats sessionID's log file under reader's sessions
// directory for projectCwd, returning its mtime and whether it exists.
func sessionMTime(reader sessionreader.Reader, projectCwd, sessionID string) (time.Time, bool) {
	dir := reader.SessionsDir(projectCwd)
	path := filepath.Join(dir, sessionID+".jsonl")
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}

// pollForNewSession scans dir for the *.jsonl file with the earliest
// modification time after since, returning its session id (filename
// without extension), or "" if
// none is found yet. Mirrors internal/executor's session-detection poll,
// used here by the background monitor for an execution whose session
// hadn't appeared yet by the time the prior process incarnation ended.
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
	return strings.TrimSuffix(candidates[0].Name(), ".jsonl")
}
