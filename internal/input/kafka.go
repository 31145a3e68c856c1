package input

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/spootnik/unklog/internal/config"
	"github.com/spootnik/unklog/internal/logging"
	"github.com/spootnik/unklog/pkg/errors"
)

const (
	defaultTopic = "logs"
	pollInterval = 300 * time.Millisecond
)

// kafkaDriver maintains a consumer-group subscription and polls one message
// at a time.  Offsets are committed broker-side through the group protocol;
// partition assignment and revocation are handled by the group coordinator.
type kafkaDriver struct {
	cfg    kafka.ReaderConfig
	logger logging.Logger

	reader *kafka.Reader
}

// newKafkaDriver maps directive options onto the consumer configuration.
// Options before the first topic= line are global consumer settings; options
// after it apply to the subscribed topic.  Unknown keys are config errors.
func newKafkaDriver(opts []config.Option, logger logging.Logger) (*kafkaDriver, error) {
	cfg := kafka.ReaderConfig{
		Topic:       defaultTopic,
		MaxWait:     pollInterval,
		StartOffset: kafka.FirstOffset,
	}

	topicSeen := false
	for _, opt := range opts {
		key := strings.ToLower(opt.Key)
		if key == "topic" {
			cfg.Topic = opt.Val
			topicSeen = true
			logger.Debug("setting topic", logging.String("topic", opt.Val))
			continue
		}
		scope := "global"
		if topicSeen {
			scope = "topic"
		}
		logger.Debug("applying option",
			logging.String("scope", scope),
			logging.String("key", opt.Key),
			logging.String("value", opt.Val))
		if err := applyOption(&cfg, key, opt.Val); err != nil {
			return nil, err
		}
	}

	if len(cfg.Brokers) == 0 {
		return nil, errors.New(errors.ErrCodeConfig, "kafka input needs bootstrap.servers")
	}
	if cfg.GroupID == "" {
		return nil, errors.New(errors.ErrCodeConfig, "kafka input needs group.id")
	}
	return &kafkaDriver{cfg: cfg, logger: logger, reader: kafka.NewReader(cfg)}, nil
}

func applyOption(cfg *kafka.ReaderConfig, key, val string) error {
	switch key {
	case "bootstrap.servers", "metadata.broker.list", "brokers":
		cfg.Brokers = strings.Split(val, ",")
	case "group.id":
		cfg.GroupID = val
	case "auto.offset.reset":
		switch strings.ToLower(val) {
		case "earliest", "smallest", "beginning":
			cfg.StartOffset = kafka.FirstOffset
		case "latest", "largest", "end":
			cfg.StartOffset = kafka.LastOffset
		default:
			return errors.Newf(errors.ErrCodeConfig, "invalid auto.offset.reset %q", val)
		}
	case "session.timeout.ms":
		ms, err := strconv.Atoi(val)
		if err != nil || ms < 1 {
			return errors.Newf(errors.ErrCodeConfig, "invalid session.timeout.ms %q", val)
		}
		cfg.SessionTimeout = time.Duration(ms) * time.Millisecond
	case "heartbeat.interval.ms":
		ms, err := strconv.Atoi(val)
		if err != nil || ms < 1 {
			return errors.Newf(errors.ErrCodeConfig, "invalid heartbeat.interval.ms %q", val)
		}
		cfg.HeartbeatInterval = time.Duration(ms) * time.Millisecond
	case "fetch.min.bytes":
		n, err := strconv.Atoi(val)
		if err != nil || n < 0 {
			return errors.Newf(errors.ErrCodeConfig, "invalid fetch.min.bytes %q", val)
		}
		cfg.MinBytes = n
	case "fetch.max.bytes", "fetch.message.max.bytes":
		n, err := strconv.Atoi(val)
		if err != nil || n < 1 {
			return errors.Newf(errors.ErrCodeConfig, "invalid fetch.max.bytes %q", val)
		}
		cfg.MaxBytes = n
	case "offset.store.method":
		// Offsets always live broker-side; accepted for compatibility.
	default:
		return errors.Newf(errors.ErrCodeConfig, "invalid configuration option %s=%s", key, val)
	}
	return nil
}

// Start runs the poll loop until the input's run flag clears.  Each
// iteration polls with a bounded deadline so the flag is observed within
// one interval.
func (k *kafkaDriver) Start(in *Input, emit EmitFunc) error {
	k.logger.Info("polling log messages",
		logging.String("topic", k.cfg.Topic),
		logging.String("group", k.cfg.GroupID))

	for in.Running() {
		ctx, cancel := context.WithTimeout(context.Background(), pollInterval)
		msg, err := k.reader.ReadMessage(ctx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if !in.Running() || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
				break
			}
			k.logger.Error("kafka error", logging.Err(err))
			time.Sleep(pollInterval)
			continue
		}
		in.CountInc()
		emit(msg.Value)
	}

	k.logger.Info("stopped subscription")
	return nil
}

// Stop closes the reader, which unblocks any in-flight poll, leaves the
// consumer group, and waits for the client to release its resources.
func (k *kafkaDriver) Stop() error {
	if k.reader == nil {
		return nil
	}
	done := make(chan error, 1)
	go func() { done <- k.reader.Close() }()
	select {
	case err := <-done:
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "kafka close failed")
		}
		return nil
	case <-time.After(time.Second):
		return errors.New(errors.ErrCodeInternal, "kafka client did not shut down in time")
	}
}
