package logger

// Option mutates a Config before the logger is built
type Option func(*Config)

func WithLevel(level string) Option {
	return func(c *Config) { c.Level = level }
}

func WithFormat(format string) Option {
	return func(c *Config) { c.Format = format }
}

func WithOutput(output string) Option {
	return func(c *Config) { c.Output = output }
}

// WithFile switches file output on with the given rotation limits
func WithFile(filename string, maxSizeMB, maxAgeDays, maxBackups int) Option {
	return func(c *Config) {
		c.File.Filename = filename
		c.File.MaxSize = maxSizeMB
		c.File.MaxAge = maxAgeDays
		c.File.MaxBackups = maxBackups
	}
}

func WithCaller(enabled bool) Option {
	return func(c *Config) { c.EnableCaller = enabled }
}

func WithStacktrace(enabled bool) Option {
	return func(c *Config) { c.EnableStacktrace = enabled }
}

// NewWithOptions applies opts on top of DefaultConfig
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Development logs colored console output at debug level
func Development() (*Logger, error) {
	return NewWithOptions(
		WithLevel("debug"),
		WithFormat(FormatConsole),
		WithOutput(OutputConsole),
	)
}

// Production logs JSON at info level into a rotated file
func Production(filename string) (*Logger, error) {
	return NewWithOptions(
		WithLevel("info"),
		WithFormat(FormatJSON),
		WithOutput(OutputFile),
		WithFile(filename, 100, 30, 10),
	)
}
