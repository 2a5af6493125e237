// Package logging is the bot's structured logger.
//
// Output always goes to the console. A chat channel can be attached at runtime
// as an additional sink; it receives a rate limited, human formatted copy of
// every record at or above its minimum level and falls back to the console when
// delivery fails.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"gamingbot/pkg/utils"
)

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Config controls levels and the chat sink throttling
type Config struct {
	Level       string
	SinkLevel   string
	SinkPerSec  int
	SinkBacklog int
}

// Field mutates a zerolog event
type Field func(e *zerolog.Event)

func String(k, v string) Field { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field { return func(e *zerolog.Event) { e.Int(k, v) } }
func Bool(k string, v bool) Field {
	return func(e *zerolog.Event) { e.Bool(k, v) }
}
func Float64(k string, v float64) Field {
	return func(e *zerolog.Event) { e.Float64(k, v) }
}
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Strs(k string, v []string) Field { return func(e *zerolog.Event) { e.Strs(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger. The zero value discards everything.
type Logger struct {
	svc    *Service
	base   *zerolog.Logger
	fields []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger {
	zl := zerolog.Nop()
	return Logger{base: &zl}
}

// NewWriter creates a standalone logger writing JSON lines to w. Used by tests.
func NewWriter(w io.Writer, level string) Logger {
	zl := zerolog.New(w).Level(parseLevel(level, zerolog.InfoLevel)).With().Timestamp().Logger()
	return Logger{base: &zl}
}

func (l Logger) root() zerolog.Logger {
	if l.svc != nil {
		return l.svc.current()
	}
	if l.base != nil {
		return *l.base
	}
	return zerolog.Nop()
}

func (l Logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	cp := l
	cp.fields = append(append([]Field(nil), l.fields...), fields...)
	return cp
}

func (l Logger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields...) }
func (l Logger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields...) }
func (l Logger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields...) }
func (l Logger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields...) }

func (l Logger) log(level zerolog.Level, msg string, fields ...Field) {
	zl := l.root()
	e := zl.WithLevel(level)
	if e == nil {
		return
	}
	if caller := shortCaller(3); caller != "" {
		e.Str(zerolog.CallerFieldName, caller)
	}
	for _, f := range l.fields {
		if f != nil {
			f(e)
		}
	}
	for _, f := range fields {
		if f != nil {
			f(e)
		}
	}
	e.Msg(msg)
}

func shortCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok || file == "" {
		return ""
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// Sink delivers one formatted log line to a chat channel.
type Sink interface {
	Send(ctx context.Context, text string) error
}

// Service owns the root logger and the optional chat sink.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	root    atomic.Value // zerolog.Logger
	console io.Writer
	now     func() time.Time

	sink     Sink
	minLevel zerolog.Level
	limiter  *rate.Limiter
	queue    chan string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates the logging service writing to the console and returns its root Logger.
func New(cfg Config) (*Service, Logger) {
	return newService(cfg, os.Stdout)
}

func newService(cfg Config, console io.Writer) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	if cfg.SinkPerSec <= 0 {
		cfg.SinkPerSec = 1
	}
	if cfg.SinkBacklog <= 0 {
		cfg.SinkBacklog = 256
	}
	s := &Service{
		cfg:      cfg,
		console:  console,
		now:      time.Now,
		minLevel: parseLevel(cfg.SinkLevel, zerolog.InfoLevel),
		limiter:  rate.NewLimiter(rate.Limit(cfg.SinkPerSec), cfg.SinkPerSec*5),
	}
	s.rebuild()
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	zl, ok := s.root.Load().(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

// rebuild swaps the root logger to match the attached writers. Callers hold mu
// or are the constructor.
func (s *Service) rebuild() {
	writers := []io.Writer{newConsoleWriter(s.console)}
	if s.sink != nil {
		writers = append(writers, &sinkWriter{svc: s})
	}
	lvl := parseLevel(s.cfg.Level, zerolog.InfoLevel)
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	s.root.Store(zl)
}

// AttachSink starts mirroring log records into sink. Replaces any previous sink.
func (s *Service) AttachSink(sink Sink) {
	s.DetachSink()

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithCancel(context.Background())
	s.sink = sink
	s.queue = make(chan string, s.cfg.SinkBacklog)
	s.cancel = cancel
	s.wg.Add(1)
	go func(q chan string) {
		defer s.wg.Done()
		s.sinkWorker(ctx, sink, q)
	}(s.queue)
	s.rebuild()
}

// DetachSink stops the chat sink; the console keeps receiving everything.
func (s *Service) DetachSink() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.sink = nil
	s.queue = nil
	s.rebuild()
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.wg.Wait()
	}
}

// Close releases the sink worker
func (s *Service) Close() error {
	s.DetachSink()
	return nil
}

func (s *Service) sinkWorker(ctx context.Context, sink Sink, q chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-q:
			for _, chunk := range utils.ChunkString(msg, utils.MaxMessageLen) {
				sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
				err := sink.Send(sctx, chunk)
				cancel()
				if err != nil {
					// never route this through the logger: it would feed the failing sink again
					fmt.Fprintf(s.console, "chat log failed: %v\n%s\n", err, chunk)
				}
			}
		}
	}
}

func (s *Service) enqueue(msg string) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- msg:
	default:
		// backlog full, console already has the record
	}
}

type sinkWriter struct{ svc *Service }

func (w *sinkWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.InfoLevel, p)
}

func (w *sinkWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	s.mu.Lock()
	minLevel := s.minLevel
	lim := s.limiter
	s.mu.Unlock()

	if level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	if msg := formatChatLine(level, p, s.now()); msg != "" {
		s.enqueue(msg)
	}
	return len(p), nil
}

// formatChatLine renders a zerolog JSON record as "`[15:04:05] [WARNING]` ⚠️ message key=value".
func formatChatLine(level zerolog.Level, p []byte, at time.Time) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return strings.TrimSpace(string(p))
	}
	msg, _ := m["message"].(string)

	var b strings.Builder
	fmt.Fprintf(&b, "`[%s] [%s]` ", at.Format("15:04:05"), chatLevel(level))
	switch level {
	case zerolog.WarnLevel:
		b.WriteString("⚠️ ")
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		b.WriteString("❌ ")
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message", zerolog.CallerFieldName:
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, m[k])
	}
	return b.String()
}

func chatLevel(level zerolog.Level) string {
	switch level {
	case zerolog.WarnLevel:
		return "WARNING"
	case zerolog.ErrorLevel, zerolog.FatalLevel, zerolog.PanicLevel:
		return "ERROR"
	case zerolog.DebugLevel, zerolog.TraceLevel:
		return "DEBUG"
	default:
		return "INFO"
	}
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

func parseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARN", "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

// MaskToken hides all but the edges of a credential for startup logs
func MaskToken(tok string) string {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return ""
	}
	if len(tok) <= 8 {
		return "***"
	}
	return tok[:3] + "***" + tok[len(tok)-3:]
}
