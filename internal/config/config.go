// Package config handles converter configuration loading and management.
package config

// Config holds all converter settings.
type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
}

// OutputConfig holds serialization settings.
type OutputConfig struct {
	// DefaultFormat is used when neither an explicit format nor a
	// usable file extension is available.
	DefaultFormat string `yaml:"default_format"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	// Verbosity controls the console report detail; 0 is a silent run.
	Verbosity int `yaml:"verbosity"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Output: OutputConfig{
			DefaultFormat: "stl-bin",
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogFile:   "",
			Verbosity: 1,
		},
	}
}
