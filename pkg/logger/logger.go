package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var Log *slog.Logger

// historySize bounds the in-memory log ring replayed to new websocket clients.
const historySize = 200

var (
	historyMu sync.Mutex
	history   []string

	broadcastMu sync.RWMutex
	broadcastCh chan<- string
)

// broadcastHandler wraps a slog.Handler and mirrors formatted records to the
// broadcast channel (non-blocking) and the replay history.
type broadcastHandler struct {
	slog.Handler
}

func (h *broadcastHandler) Handle(ctx context.Context, r slog.Record) error {
	err := h.Handler.Handle(ctx, r)

	msg := fmt.Sprintf("time=%s level=%s msg=%q",
		r.Time.Format("2006-01-02T15:04:05.000-07:00"), r.Level, r.Message)
	r.Attrs(func(a slog.Attr) bool {
		msg += fmt.Sprintf(" %s=%v", a.Key, a.Value)
		return true
	})

	historyMu.Lock()
	history = append(history, msg)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	historyMu.Unlock()

	broadcastMu.RLock()
	ch := broadcastCh
	broadcastMu.RUnlock()
	if ch != nil {
		select {
		case ch <- msg:
		default:
			// Drop if the channel is full to avoid blocking request paths.
		}
	}
	return err
}

// SetBroadcast sets a channel to receive formatted log lines (for the events websocket).
func SetBroadcast(ch chan<- string) {
	broadcastMu.Lock()
	broadcastCh = ch
	broadcastMu.Unlock()
}

// History returns a copy of the recent log lines for replay to new clients.
func History() []string {
	historyMu.Lock()
	defer historyMu.Unlock()
	out := make([]string, len(history))
	copy(out, history)
	return out
}

// Init initializes the global logger at the given level (DEBUG/INFO/WARN/ERROR).
func Init(levelStr string) {
	var level slog.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	base := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	Log = slog.New(&broadcastHandler{Handler: base})
	slog.SetDefault(Log)
}

func ensure() *slog.Logger {
	if Log == nil {
		Init("INFO")
	}
	return Log
}

func Debug(msg string, args ...any) { ensure().Debug(msg, args...) }
func Info(msg string, args ...any)  { ensure().Info(msg, args...) }
func Warn(msg string, args ...any)  { ensure().Warn(msg, args...) }
func Error(msg string, args ...any) { ensure().Error(msg, args...) }
