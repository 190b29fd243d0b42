package handlers

import (
	"github.com/getsentry/raven-go"
	log "github.com/sirupsen/logrus"
)

// Reporter forwards server-side failures to an error tracker.
type Reporter interface {
	Report(err error, tags map[string]string)
}

// NopReporter drops every report.
type NopReporter struct{}

func (NopReporter) Report(error, map[string]string) {}

// SentryReporter sends reports to Sentry.
type SentryReporter struct {
	client *raven.Client
}

// NewSentryReporter returns a reporter for dsn, or a NopReporter when dsn
// is empty.
func NewSentryReporter(dsn string, release string) (Reporter, error) {
	if dsn == "" {
		return NopReporter{}, nil
	}
	client, err := raven.New(dsn)
	if err != nil {
		return nil, err
	}
	if release != "" {
		client.SetRelease(release)
	}
	log.Info("[Handler] Reporting errors to Sentry")
	return &SentryReporter{client: client}, nil
}

func (s *SentryReporter) Report(err error, tags map[string]string) {
	s.client.CaptureError(err, tags)
}
