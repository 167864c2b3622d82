package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rizkirmdhn/vimeo-scraper/internal/common/config"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNew_UsesConfiguredLevel(t *testing.T) {
	log := New(&config.Config{App: config.AppConfig{LogLevel: int(logrus.WarnLevel)}})

	assert.Equal(t, logrus.WarnLevel, log.GetLevel())
}

func TestComponentLogger_AddsComponent(t *testing.T) {
	var buf bytes.Buffer
	base := logrus.New()
	base.SetOutput(&buf)
	base.SetFormatter(&logrus.JSONFormatter{})

	log := NewComponentLogger(base, "extractor")

	log.WithField("url", "http://example.com").Info("one")
	log.WithFields(logrus.Fields{"count": 2}).Info("two")
	log.WithError(errors.New("boom")).Error("three")

	out := buf.String()
	assert.Equal(t, 3, bytes.Count(buf.Bytes(), []byte(`"component":"extractor"`)))
	assert.Contains(t, out, `"url":"http://example.com"`)
	assert.Contains(t, out, `"count":2`)
	assert.Contains(t, out, `"error":"boom"`)
}
