package api

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/wafscope/internal/rules"
	"github.com/solatis/wafscope/internal/types"
)

// evaluationRecord is one line of the daily evaluation log.
type evaluationRecord struct {
	Time        time.Time       `json:"time"`
	WorkspaceID string          `json:"workspaceId"`
	RuleSetID   types.RuleSetID `json:"ruleSetId"`
	Request     types.Request   `json:"request"`
	Report      *rules.Report   `json:"report"`
}

// evaluationLog appends evaluation reports to <dir>/YYYY-MM-DD.jsonl.
// JSONL output is a debugging aid, not authoritative: failures are logged
// and never fail the request.
type evaluationLog struct {
	dir       string
	mutexes   map[string]*sync.Mutex
	mutexLock sync.Mutex
}

func newEvaluationLog(dir string) *evaluationLog {
	return &evaluationLog{dir: dir, mutexes: make(map[string]*sync.Mutex)}
}

// path returns the file for the record's UTC day.
func (l *evaluationLog) path(t time.Time) string {
	return filepath.Join(l.dir, t.UTC().Format("2006-01-02.jsonl"))
}

// fileMutex returns mutex for given filename, creating if not exists.
// Mutex map grows by ~1 entry/day.
func (l *evaluationLog) fileMutex(filename string) *sync.Mutex {
	l.mutexLock.Lock()
	defer l.mutexLock.Unlock()

	if _, ok := l.mutexes[filename]; !ok {
		l.mutexes[filename] = &sync.Mutex{}
	}
	return l.mutexes[filename]
}

func (l *evaluationLog) append(rec evaluationRecord) {
	filename := l.path(rec.Time)
	mu := l.fileMutex(filename)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.Warn("evaluation log unavailable", slog.String("file", filename), slog.Any("error", err))
		return
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		slog.Warn("evaluation log write failed", slog.String("file", filename), slog.Any("error", err))
	}
}
