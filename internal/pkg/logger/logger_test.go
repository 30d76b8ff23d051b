package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
	}{
		{name: "nil config uses defaults", config: nil},
		{name: "console json", config: &Config{Level: "debug", Format: FormatJSON, Output: OutputConsole}},
		{
			name: "file output",
			config: &Config{
				Level:  "info",
				Format: FormatConsole,
				Output: OutputFile,
				File: FileConfig{
					Filename:   filepath.Join(t.TempDir(), "catalog.log"),
					MaxSize:    1,
					MaxAge:     1,
					MaxBackups: 1,
				},
			},
		},
		{name: "bad level", config: &Config{Level: "loud", Format: FormatJSON, Output: OutputConsole}, wantErr: true},
		{name: "bad format", config: &Config{Level: "info", Format: "xml", Output: OutputConsole}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Error("New() returned nil logger")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "bad output", mutate: func(c *Config) { c.Output = "syslog" }, wantErr: true},
		{name: "file without name", mutate: func(c *Config) { c.Output = OutputFile; c.File.Filename = "" }, wantErr: true},
		{name: "file zero size", mutate: func(c *Config) { c.Output = OutputBoth; c.File.MaxSize = 0 }, wantErr: true},
		{name: "negative backups", mutate: func(c *Config) { c.Output = OutputFile; c.File.MaxBackups = -1 }, wantErr: true},
		{name: "uppercase level", mutate: func(c *Config) { c.Level = "WARN" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	l := NewNop()
	child := l.With(zap.String("component", "catalog")).Named("query")
	if child == nil || child.Config() != l.Config() {
		t.Error("child logger should share the parent config")
	}
}

func TestContext(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithViewID(ctx, "view-7")

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetViewID(ctx); got != "view-7" {
		t.Errorf("GetViewID() = %q", got)
	}
	if got := GetViewID(context.Background()); got != "" {
		t.Errorf("GetViewID() on empty context = %q", got)
	}

	stored := NewNop()
	ctx = ToContext(ctx, stored)
	if FromContext(ctx) == nil {
		t.Error("FromContext() returned nil")
	}
	InfoContext(ctx, "context logging works")
}

func TestGlobalLogger(t *testing.T) {
	if err := InitGlobal(&Config{Level: "error", Format: FormatJSON, Output: OutputConsole}); err != nil {
		t.Fatalf("InitGlobal() error = %v", err)
	}
	if L().Config().Level != "error" {
		t.Errorf("global level = %q, want error", L().Config().Level)
	}
	Info("suppressed at error level")
}

func TestNewWithOptions(t *testing.T) {
	l, err := NewWithOptions(WithLevel("warn"), WithFormat(FormatConsole), WithCaller(false), WithStacktrace(false))
	if err != nil {
		t.Fatalf("NewWithOptions() error = %v", err)
	}
	cfg := l.Config()
	if cfg.Level != "warn" || cfg.Format != FormatConsole || cfg.EnableCaller || cfg.EnableStacktrace {
		t.Errorf("options not applied: %+v", cfg)
	}

	if _, err := Development(); err != nil {
		t.Errorf("Development() error = %v", err)
	}
	if _, err := Production(filepath.Join(t.TempDir(), "prod.log")); err != nil {
		t.Errorf("Production() error = %v", err)
	}
}

func TestGinLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinLogger(NewNop(), MiddlewareOptions{SkipPaths: []string{"/health"}}), GinRecovery(NewNop()))

	var seen string
	r.GET("/files", func(c *gin.Context) {
		seen = GetRequestID(c.Request.Context())
		c.Status(http.StatusOK)
	})
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/files", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	r.ServeHTTP(w, req)

	if seen != "fixed-id" {
		t.Errorf("request id in context = %q, want fixed-id", seen)
	}
	if w.Header().Get("X-Request-ID") != "fixed-id" {
		t.Errorf("request id header = %q", w.Header().Get("X-Request-ID"))
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("panic status = %d, want 500", w.Code)
	}
}
