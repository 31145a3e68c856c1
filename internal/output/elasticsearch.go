package output

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/pkg/errors"
)

const dayFormat = "20060102"

// esDriver posts each payload to <url>/logstash-<YYYYMMDD>/<type>.  One
// client is reused across payloads; connections are pooled with TCP
// keepalive and transient gateway statuses are retried by the transport.
type esDriver struct {
	url     string
	verbose bool
	logger  logging.Logger

	client *opensearch.Client
	day    string
	now    func() time.Time
}

func newESDriver(opts []config.Option, logger logging.Logger) (*esDriver, error) {
	es := &esDriver{logger: logger, now: time.Now}
	for _, opt := range opts {
		switch strings.ToLower(opt.Key) {
		case "url":
			es.url = strings.TrimRight(opt.Val, "/")
		case "verbose":
			es.verbose = true
		case "queue":
			// Consumed by the worker.
		default:
			return nil, errors.Newf(errors.ErrCodeConfig, "unknown elasticsearch option %q", opt.Key)
		}
	}
	if es.url == "" {
		return nil, errors.New(errors.ErrCodeConfig, "elasticsearch output needs a url to connect to")
	}
	return es, nil
}

func (es *esDriver) Start() error {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     300 * time.Second,
	}
	client, err := opensearch.NewClient(opensearch.Config{
		Addresses:     []string{es.url},
		Transport:     transport,
		MaxRetries:    3,
		RetryOnStatus: []int{502, 503, 504, 429},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot create indexing client")
	}
	es.client = client
	es.day = es.now().UTC().Format(dayFormat)
	es.logger.Info("using url", logging.String("url", es.url))
	return nil
}

func (es *esDriver) Payload(typ string, body []byte) error {
	// The day segment only moves forward; recompute when UTC rolled over.
	if day := es.now().UTC().Format(dayFormat); day > es.day {
		es.day = day
	}
	// The transport client resolves the configured address; the request
	// carries only the index path.
	path := fmt.Sprintf("/logstash-%s/%s", es.day, typ)

	req, err := http.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "cannot build index request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := es.client.Perform(req)
	if err != nil {
		return errors.Wrapf(err, errors.ErrCodeUnavailable, "post %s failed", path)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if es.verbose {
		es.logger.Debug("indexed payload",
			logging.String("path", path),
			logging.Int("status", resp.StatusCode))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Newf(errors.ErrCodeUnavailable, "post %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (es *esDriver) Stop() error {
	es.logger.Info("indexing client closed")
	return nil
}
