// Package gcp integrates the bridge with Google Cloud: structured logging
// through Cloud Logging with a local JSON fallback.
package gcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
)

// Logger is the logging surface handed to bridge services.
type Logger interface {
	Debug(msg string)
	Debugf(format string, args ...interface{})
	Info(msg string)
	Infof(format string, args ...interface{})
	Warning(msg string)
	Warningf(format string, args ...interface{})
	Error(msg string)
	Errorf(format string, args ...interface{})
	Flush() error
	Close() error
}

// Config configures the Cloud Logging client.
type Config struct {
	ProjectID string
	LogID     string
	Labels    map[string]string
}

// entrySink abstracts the Cloud Logging logger for tests.
type entrySink interface {
	Log(e logging.Entry)
	Flush() error
}

// CloudLogger writes structured entries to Cloud Logging.
type CloudLogger struct {
	client *logging.Client
	sink   entrySink
	labels map[string]string
}

// NewCloudLogger creates a logger backed by the Cloud Logging API.
func NewCloudLogger(ctx context.Context, cfg Config, opts ...option.ClientOption) (*CloudLogger, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project id is required for cloud logging")
	}
	logID := cfg.LogID
	if logID == "" {
		logID = "beadbridge"
	}

	client, err := logging.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating logging client: %w", err)
	}

	return &CloudLogger{
		client: client,
		sink:   client.Logger(logID),
		labels: cfg.Labels,
	}, nil
}

func (cl *CloudLogger) log(severity logging.Severity, msg string) {
	cl.sink.Log(logging.Entry{
		Severity: severity,
		Payload:  SanitizeForLog(msg),
		Labels:   cl.labels,
	})
}

func (cl *CloudLogger) Debug(msg string) { cl.log(logging.Debug, msg) }
func (cl *CloudLogger) Debugf(format string, args ...interface{}) {
	cl.log(logging.Debug, fmt.Sprintf(format, args...))
}
func (cl *CloudLogger) Info(msg string) { cl.log(logging.Info, msg) }
func (cl *CloudLogger) Infof(format string, args ...interface{}) {
	cl.log(logging.Info, fmt.Sprintf(format, args...))
}
func (cl *CloudLogger) Warning(msg string) { cl.log(logging.Warning, msg) }
func (cl *CloudLogger) Warningf(format string, args ...interface{}) {
	cl.log(logging.Warning, fmt.Sprintf(format, args...))
}
func (cl *CloudLogger) Error(msg string) { cl.log(logging.Error, msg) }
func (cl *CloudLogger) Errorf(format string, args ...interface{}) {
	cl.log(logging.Error, fmt.Sprintf(format, args...))
}

// Flush blocks until buffered entries are delivered.
func (cl *CloudLogger) Flush() error { return cl.sink.Flush() }

// Close flushes and releases the client.
func (cl *CloudLogger) Close() error {
	if cl.client == nil {
		return cl.Flush()
	}
	return cl.client.Close()
}

// logLine is the local structured log shape. It matches what the Cloud
// Logging agent parses from stdout when the bridge runs on a GCP VM
// without API credentials.
type logLine struct {
	Severity  string            `json:"severity"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Labels    map[string]string `json:"labels,omitempty"`
}

// FallbackLogger writes structured JSON lines to a local writer.
type FallbackLogger struct {
	mu     sync.Mutex
	writer io.Writer
	labels map[string]string
}

// NewFallbackLogger creates a local structured logger.
func NewFallbackLogger(w io.Writer, labels map[string]string) *FallbackLogger {
	return &FallbackLogger{writer: w, labels: labels}
}

func (fl *FallbackLogger) log(severity, msg string) {
	fl.mu.Lock()
	defer fl.mu.Unlock()

	line := logLine{
		Severity:  severity,
		Message:   SanitizeForLog(msg),
		Timestamp: time.Now().UTC(),
		Labels:    fl.labels,
	}
	data, err := json.Marshal(line)
	if err != nil {
		fmt.Fprintf(fl.writer, `{"severity":"ERROR","message":"failed to marshal log entry: %v"}`+"\n", err)
		return
	}
	fmt.Fprintf(fl.writer, "%s\n", data)
}

func (fl *FallbackLogger) Debug(msg string) { fl.log("DEBUG", msg) }
func (fl *FallbackLogger) Debugf(format string, args ...interface{}) {
	fl.log("DEBUG", fmt.Sprintf(format, args...))
}
func (fl *FallbackLogger) Info(msg string) { fl.log("INFO", msg) }
func (fl *FallbackLogger) Infof(format string, args ...interface{}) {
	fl.log("INFO", fmt.Sprintf(format, args...))
}
func (fl *FallbackLogger) Warning(msg string) { fl.log("WARNING", msg) }
func (fl *FallbackLogger) Warningf(format string, args ...interface{}) {
	fl.log("WARNING", fmt.Sprintf(format, args...))
}
func (fl *FallbackLogger) Error(msg string) { fl.log("ERROR", msg) }
func (fl *FallbackLogger) Errorf(format string, args ...interface{}) {
	fl.log("ERROR", fmt.Sprintf(format, args...))
}

func (fl *FallbackLogger) Flush() error { return nil }
func (fl *FallbackLogger) Close() error { return nil }

var (
	_ Logger = (*CloudLogger)(nil)
	_ Logger = (*FallbackLogger)(nil)
)

// NewLogger returns a Cloud Logging logger when a project is configured,
// otherwise a local structured logger on stdout.
func NewLogger(ctx context.Context, cfg Config, opts ...option.ClientOption) (Logger, error) {
	if cfg.ProjectID != "" {
		return NewCloudLogger(ctx, cfg, opts...)
	}
	return NewFallbackLogger(os.Stdout, cfg.Labels), nil
}

// SanitizeForLog redacts token-shaped values before they reach a log sink.
func SanitizeForLog(s string) string {
	for _, prefix := range []string{"ghs_", "ghp_", "gho_", "github_pat_"} {
		if strings.HasPrefix(s, prefix) {
			return "[REDACTED_GITHUB_TOKEN]"
		}
	}
	if strings.HasPrefix(s, "Bearer ") {
		return "Bearer [REDACTED]"
	}
	return s
}
