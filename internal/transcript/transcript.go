// Package transcript writes best-effort NDJSON audit logs of conversations,
// one file per user and conversation.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/legalai/legal-assistant/internal/config"
	"go.uber.org/zap"
)

// Event types.
const (
	EventUserMessage      = "user_message"
	EventAssistantMessage = "assistant_message"
	EventLLMError         = "llm_error"
)

// Event is one transcript line.
type Event struct {
	Timestamp      time.Time `json:"ts"`
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	EventType      string    `json:"event_type"`
	Role           string    `json:"role,omitempty"`
	Content        string    `json:"content,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// Recorder accepts transcript events. Record must not block.
type Recorder interface {
	Record(Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Record(Event) {}

// Writer queues events and appends them to disk from a single goroutine.
// When the queue is full the oldest pending event is dropped.
type Writer struct {
	dir    string
	queue  chan Event
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// New starts a Writer rooted at cfg.Dir.
func New(cfg config.TranscriptConfig, logger *zap.Logger) (*Writer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	w := &Writer{
		dir:    cfg.Dir,
		queue:  make(chan Event, queueSize),
		logger: logger.With(zap.String("component", "transcript")),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Record enqueues e without blocking. Events recorded after Close are dropped.
func (w *Writer) Record(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return
	}

	select {
	case w.queue <- e:
		return
	default:
	}

	// Full: drop the oldest pending event and try once more.
	select {
	case old := <-w.queue:
		w.logger.Warn("transcript queue full, dropped oldest event",
			zap.String("conversation_id", old.ConversationID))
	default:
	}
	select {
	case w.queue <- e:
	default:
		w.logger.Warn("transcript queue full, dropped event",
			zap.String("conversation_id", e.ConversationID))
	}
}

// Close flushes pending events and stops the writer goroutine.
func (w *Writer) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()

	w.wg.Wait()
	return nil
}

func (w *Writer) run() {
	defer w.wg.Done()
	for e := range w.queue {
		if err := w.write(e); err != nil {
			w.logger.Warn("failed to write transcript event",
				zap.String("user_id", e.UserID),
				zap.String("conversation_id", e.ConversationID),
				zap.Error(err))
		}
	}
}

func (w *Writer) write(e Event) error {
	path, err := w.pathFor(e)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create user directory: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript: %w", err)
	}
	return f.Close()
}

func (w *Writer) pathFor(e Event) (string, error) {
	user, ok := safeSegment(e.UserID)
	if !ok {
		return "", fmt.Errorf("unsafe user id %q", e.UserID)
	}
	conv, ok := safeSegment(e.ConversationID)
	if !ok {
		return "", fmt.Errorf("unsafe conversation id %q", e.ConversationID)
	}
	return filepath.Join(w.dir, user, conv+".ndjson"), nil
}

// safeSegment maps id to a single path element, rejecting traversal.
func safeSegment(id string) (string, bool) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", false
	}
	return strings.ReplaceAll(id, ":", "_"), true
}
