package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"mspro-labs/coffee-finder/internal/config"
)

// ComponentField names the subsystem that wrote an entry. It is one of the
// fields promoted to a Loki stream label.
const ComponentField = "component"

// Component returns a child logger tagged with the subsystem name.
func Component(logger zerolog.Logger, name string) zerolog.Logger {
	return logger.With().Str(ComponentField, name).Logger()
}

// Setup creates a zerolog logger according to the provided configuration.
func Setup(cfg config.LoggingConfig) (zerolog.Logger, func(), error) {
	return setup(cfg, os.Stdout)
}

func setup(cfg config.LoggingConfig, out io.Writer) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
		if err != nil {
			return zerolog.Logger{}, nil, fmt.Errorf("parse log level: %w", err)
		}
		level = parsed
	}

	stdout := out
	if strings.EqualFold(cfg.Format, "text") {
		stdout = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	writers := []io.Writer{stdout}
	cleanup := func() {}

	if cfg.Loki.Enabled {
		sink, stop, err := newLokiWriter(cfg.Loki)
		if err != nil {
			return zerolog.Logger{}, nil, err
		}
		writers = append(writers, sink)
		cleanup = stop
	}

	multi := zerolog.MultiLevelWriter(writers...)
	logger := zerolog.New(multi).With().Timestamp().Logger().Level(level)
	return logger, cleanup, nil
}

func newLokiWriter(cfg config.LokiConfig) (io.Writer, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("loki url is required")
	}
	base, err := baseLabels(cfg.Labels)
	if err != nil {
		return nil, nil, err
	}
	lokiCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create loki client: %w", err)
	}
	return &lokiWriter{client: client, base: base}, client.Stop, nil
}

// baseLabels validates the configured static labels and fills in app.
func baseLabels(configured map[string]string) (model.LabelSet, error) {
	labels := model.LabelSet{"app": "coffee-finder"}
	for k, v := range configured {
		name, value := model.LabelName(k), model.LabelValue(v)
		if !name.IsValid() || !value.IsValid() {
			return nil, fmt.Errorf("invalid loki label %s=%q", k, v)
		}
		labels[name] = value
	}
	return labels, nil
}

// pusher is the part of the Loki client the writer needs.
type pusher interface {
	Handle(labels model.LabelSet, t time.Time, entry string) error
}

// lokiWriter ships each JSON entry to Loki. Low-cardinality fields such as
// level and component become stream labels; the rest, request_id included,
// stays in the line.
type lokiWriter struct {
	client pusher
	base   model.LabelSet
}

var streamFields = []string{zerolog.LevelFieldName, ComponentField}

func (l *lokiWriter) Write(p []byte) (int, error) {
	entry := bytes.TrimSpace(p)
	if len(entry) == 0 {
		return len(p), nil
	}
	labels, at := streamLabels(l.base, entry)
	return len(p), l.client.Handle(labels, at, string(entry))
}

// streamLabels derives the stream labels and timestamp of one entry. Entries
// that are not JSON go to the base stream stamped with the current time.
func streamLabels(base model.LabelSet, entry []byte) (model.LabelSet, time.Time) {
	at := time.Now()
	var fields map[string]any
	if err := json.Unmarshal(entry, &fields); err != nil {
		return base, at
	}
	labels := base.Clone()
	for _, name := range streamFields {
		v, ok := fields[name].(string)
		if !ok || v == "" {
			continue
		}
		if value := model.LabelValue(v); value.IsValid() {
			labels[model.LabelName(name)] = value
		}
	}
	if raw, ok := fields[zerolog.TimestampFieldName].(string); ok {
		if parsed, err := time.Parse(zerolog.TimeFieldFormat, raw); err == nil {
			at = parsed
		}
	}
	return labels, at
}
