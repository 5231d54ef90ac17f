package logger

import (
	"os"
	"runtime"
)

// Config describes where and how the gateway logs. Field tags match the
// "log" section of the gateway configuration file.
type Config struct {
	Level      string            `json:"level"       yaml:"level"       mapstructure:"level"`
	Format     string            `json:"format"      yaml:"format"      mapstructure:"format"` // json, text, console
	Output     string            `json:"output"      yaml:"output"      mapstructure:"output"` // stdout, stderr, file, discard
	FilePath   string            `json:"file_path"   yaml:"file_path"   mapstructure:"file_path"`
	MaxSize    int               `json:"max_size"    yaml:"max_size"    mapstructure:"max_size"` // MB
	MaxBackups int               `json:"max_backups" yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int               `json:"max_age"     yaml:"max_age"     mapstructure:"max_age"` // days
	Compress   bool              `json:"compress"    yaml:"compress"    mapstructure:"compress"`
	Fields     map[string]string `json:"fields"      yaml:"fields"      mapstructure:"fields"`
}

// GetDefaultFields returns process and deployment fields attached to every entry.
func GetDefaultFields() Fields {
	hostname, _ := os.Hostname()

	fields := Fields{
		"hostname":   hostname,
		"pid":        os.Getpid(),
		"go_version": runtime.Version(),
	}

	// Kubernetes fields
	if namespace := os.Getenv("KUBERNETES_NAMESPACE"); namespace != "" {
		fields["k8s_namespace"] = namespace
	}
	if podName := os.Getenv("KUBERNETES_POD_NAME"); podName != "" {
		fields["k8s_pod"] = podName
	}

	if version := os.Getenv("REALTIME_VERSION"); version != "" {
		fields["app_version"] = version
	}
	if env := os.Getenv("REALTIME_ENV"); env != "" {
		fields["environment"] = env
	}

	return fields
}

func NewDefaultConfig() *Config {
	config := &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     make(map[string]string),
	}

	for k, v := range GetDefaultFields() {
		if str, ok := v.(string); ok {
			config.Fields[k] = str
		}
	}

	return config
}
