package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileLedger is a JSONL append-only ledger: one line per record, synced on
// every trade write. Good enough for a single-writer agent; the postgres
// ledger exists for shared deployments.
type FileLedger struct {
	mu         sync.Mutex
	tradesPath string
	eventsPath string
}

// NewFileLedger creates (or reopens) a ledger rooted at dir.
func NewFileLedger(dir string) (*FileLedger, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create ledger dir: %w", err)
	}
	return &FileLedger{
		tradesPath: filepath.Join(dir, "trades.jsonl"),
		eventsPath: filepath.Join(dir, "events.jsonl"),
	}, nil
}

// AppendTrade appends one record and fsyncs before returning. A failure here
// after an exchange acknowledgment is a PersistenceFailure.
func (l *FileLedger) AppendTrade(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := appendLine(l.tradesPath, rec, true); err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// Trades replays all records for coin in append order.
func (l *FileLedger) Trades(ctx context.Context, coin string) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.tradesPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open trade ledger: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			// A torn final line from a crash mid-write is tolerable; a torn
			// line in the middle is not.
			return nil, fmt.Errorf("corrupt trade ledger at line %d: %w", line, err)
		}
		if coin == "" || strings.EqualFold(rec.Coin, coin) {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read trade ledger: %w", err)
	}
	return records, nil
}

// LogEvent appends an audit event. Event writes are best effort and are not
// fsynced.
func (l *FileLedger) LogEvent(ctx context.Context, event Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.eventsPath, event, false)
}

func appendLine(path string, v any, sync bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	if sync {
		if err := f.Sync(); err != nil {
			return err
		}
	}
	return nil
}
