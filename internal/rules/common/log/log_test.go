package log

import (
	"errors"
	"testing"

	"go.uber.org/zap"
)

type testLogger struct {
	entries []string
}

func (l *testLogger) Info(_ map[string]any, msg string)  { l.entries = append(l.entries, "INFO:"+msg) }
func (l *testLogger) Error(_ map[string]any, msg string) { l.entries = append(l.entries, "ERROR:"+msg) }
func (l *testLogger) Debug(_ map[string]any, msg string) { l.entries = append(l.entries, "DEBUG:"+msg) }
func (l *testLogger) Warn(_ map[string]any, msg string)  { l.entries = append(l.entries, "WARN:"+msg) }
func (l *testLogger) Panic(_ map[string]any, msg string) {}
func (l *testLogger) Fatal(_ map[string]any, msg string) {}

func withLogger(t *testing.T, l Logger) {
	t.Helper()
	orig := GetLogger()
	SetLogger(l)
	t.Cleanup(func() { SetLogger(orig) })
}

func TestZapLogger_AllLevels(t *testing.T) {
	Debug(map[string]any{
		"source": "WeChat",
		"rules":  42,
		"ok":     true,
		"error":  errors.New("boom"),
	}, "fetch_done")
	Info(nil, "test info")
	Warn(nil, "test warn")
	Error(nil, "test error")
	Sync()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic, but none occurred")
		}
	}()
	Panic(nil, "test panic")
}

func TestSetLoggerAndGlobalLogging(t *testing.T) {
	tlog := &testLogger{}
	withLogger(t, tlog)

	Info(nil, "info msg")
	Error(nil, "error msg")
	Debug(nil, "debug msg")
	Warn(nil, "warn msg")

	expected := []string{
		"INFO:info msg",
		"ERROR:error msg",
		"DEBUG:debug msg",
		"WARN:warn msg",
	}
	if len(tlog.entries) != len(expected) {
		t.Fatalf("expected %d log entries, got %d", len(expected), len(tlog.entries))
	}
	for i, msg := range expected {
		if tlog.entries[i] != msg {
			t.Errorf("expected log[%d] = %q, got %q", i, msg, tlog.entries[i])
		}
	}
}

func TestConfigure(t *testing.T) {
	withLogger(t, &testLogger{})

	tests := []struct {
		env, level string
		wantErr    bool
	}{
		{"dev", "debug", false},
		{"prod", "info", false},
		{"prod", "WARN", false},
		{"dev", "notalevel", true},
	}
	for _, tt := range tests {
		err := Configure(tt.env, tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("Configure(%q, %q) err = %v, wantErr %v", tt.env, tt.level, err, tt.wantErr)
		}
	}
}

func TestZapFields_SortedAndErrorsNamed(t *testing.T) {
	fields := zapFields(map[string]any{"b": 1, "a": 2, "err": errors.New("x")})
	if len(fields) != 3 {
		t.Fatalf("expected 3 fields, got %d", len(fields))
	}
	want := []string{"a", "b", "err"}
	for i, k := range want {
		if fields[i].Key != k {
			t.Errorf("field[%d].Key = %q, want %q", i, fields[i].Key, k)
		}
	}
	if fields[2].Equals(zap.Any("err", "x")) {
		t.Error("error value should be encoded as a named error, not a plain value")
	}
}

func TestNoopLogger_AllLevels(t *testing.T) {
	withLogger(t, NewNoopLogger())

	Debug(nil, "debug message")
	Info(nil, "info message")
	Warn(nil, "warn message")
	Error(nil, "error message")
	Panic(nil, "panic message")
	Fatal(nil, "fatal message")
	Sync()
}
