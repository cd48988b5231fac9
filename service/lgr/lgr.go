package lgr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mdobak/go-xerrors"
	"github.com/natefinch/lumberjack"
	"go.opentelemetry.io/otel/trace"
	xfmt "golang.org/x/xerrors"
)

// Logger is the process logger. It is replaced by Init.
var Logger = slog.New(NewPrettyHandler(os.Stdout, &slog.HandlerOptions{
	Level:       slog.LevelInfo,
	ReplaceAttr: replaceAttr,
}))

// Init rebuilds Logger from LOG_LEVEL and LOG_FILE.
// When LOG_FILE is set, records are also written as JSON to a rolling file.
func Init() {
	opts := &slog.HandlerOptions{
		Level:       parseLevel(os.Getenv("LOG_LEVEL")),
		ReplaceAttr: replaceAttr,
	}

	var handler slog.Handler = NewPrettyHandler(os.Stdout, opts)
	if file := os.Getenv("LOG_FILE"); file != "" {
		handler = &fanoutHandler{handlers: []slog.Handler{
			handler,
			slog.NewJSONHandler(&lumberjack.Logger{
				Filename:   file,
				MaxSize:    10, // MB
				MaxBackups: 5,
				MaxAge:     7, // days
				Compress:   true,
			}, opts),
		}}
	}

	Logger = slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type stackFrame struct {
	Func   string `json:"func"`
	Source string `json:"source"`
	Line   int    `json:"line"`
}

func replaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindAny {
		if err, ok := a.Value.Any().(error); ok {
			a.Value = fmtErr(err)
		}
	}
	return a
}

func marshalStack(err error) []stackFrame {
	trace := xerrors.StackTrace(err)
	if len(trace) == 0 {
		return formattedStack(err)
	}

	frames := trace.Frames()
	s := make([]stackFrame, len(frames))
	for i, v := range frames {
		s[i] = stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(v.File)), filepath.Base(v.File)),
			Func:   filepath.Base(v.Function),
			Line:   v.Line,
		}
	}
	return s
}

// formattedStack reads the frames that golang.org/x/xerrors errors print
// with %+v: a function line followed by its file:line.
func formattedStack(err error) []stackFrame {
	if _, ok := err.(xfmt.Formatter); !ok {
		return nil
	}

	lines := strings.Split(fmt.Sprintf("%+v", err), "\n")
	var frames []stackFrame
	for i := 1; i < len(lines); i++ {
		loc := strings.TrimSpace(lines[i])
		sep := strings.LastIndex(loc, ":")
		if sep < 0 || !strings.HasSuffix(loc[:sep], ".go") {
			continue
		}
		line, convErr := strconv.Atoi(loc[sep+1:])
		if convErr != nil {
			continue
		}
		file := loc[:sep]
		frames = append(frames, stackFrame{
			Source: filepath.Join(filepath.Base(filepath.Dir(file)), filepath.Base(file)),
			Func:   filepath.Base(strings.TrimSpace(lines[i-1])),
			Line:   line,
		})
	}
	return frames
}

func fmtErr(err error) slog.Value {
	var groupValues []slog.Attr
	groupValues = append(groupValues, slog.String("msg", err.Error()))

	if frames := marshalStack(err); frames != nil {
		groupValues = append(groupValues, slog.Any("trace", frames))
	}
	return slog.GroupValue(groupValues...)
}

// PrettyHandler prints colored, human oriented records to a console.
type PrettyHandler struct {
	slog.Handler
	l     *log.Logger
	attrs []slog.Attr
}

func NewPrettyHandler(out io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	return &PrettyHandler{
		Handler: slog.NewJSONHandler(out, opts),
		l:       log.New(out, "", 0),
	}
}

func (h *PrettyHandler) Handle(ctx context.Context, r slog.Record) error {
	level := r.Level.String() + ":"
	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	fields := make(map[string]interface{}, r.NumAttrs()+len(h.attrs)+2)
	for _, a := range h.attrs {
		fields[a.Key] = replaceAttr(nil, a).Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = resolve(replaceAttr(nil, a).Value)
		return true
	})

	if span := trace.SpanContextFromContext(ctx); span.IsValid() {
		fields["trace_id"] = span.TraceID().String()
		fields["span_id"] = span.SpanID().String()
	}

	var extra string
	if len(fields) > 0 {
		b, err := json.MarshalIndent(fields, "", "  ")
		if err != nil {
			return err
		}
		extra = color.WhiteString(string(b))
	}

	h.l.Println(r.Time.Format("[15:04:05.000]"), level, color.CyanString(r.Message), extra)
	return nil
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &PrettyHandler{Handler: h.Handler.WithAttrs(attrs), l: h.l, attrs: merged}
}

func resolve(v slog.Value) interface{} {
	if v.Kind() != slog.KindGroup {
		return v.Any()
	}
	m := map[string]interface{}{}
	for _, a := range v.Group() {
		m[a.Key] = resolve(a.Value)
	}
	return m
}

type fanoutHandler struct {
	handlers []slog.Handler
}

func (f *fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f *fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanoutHandler{handlers: hs}
}

func (f *fanoutHandler) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanoutHandler{handlers: hs}
}
