package messaging

import (
	"context"
	"errors"
	"slices"

	"github.com/Misgexx/mintguard/internal/config"
	"github.com/nats-io/nats.go"
)

// NATSClient publishes ledger events to a JetStream stream.
type NATSClient struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	cfg  config.NATS
}

// NewNATS returns nil, nil when no URL is configured.
func NewNATS(ctx context.Context, cfg config.NATS) (*NATSClient, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	if cfg.Stream == "" || cfg.SubjectPrefix == "" {
		return nil, errors.New("nats: stream and subject_prefix are required")
	}

	conn, err := nats.Connect(cfg.URL, nats.Name("mintguard"))
	if err != nil {
		return nil, err
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ensureStream(ctx, js, cfg); err != nil {
		conn.Close()
		return nil, err
	}

	return &NATSClient{conn: conn, js: js, cfg: cfg}, nil
}

func (c *NATSClient) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.conn.Close()
}

// Publish sets Nats-Msg-Id so JetStream drops redelivered outbox rows.
func (c *NATSClient) Publish(ctx context.Context, subject string, payload []byte, msgID string) error {
	if c == nil {
		return errors.New("nats: client not configured")
	}
	if c.js == nil {
		return errors.New("nats: jetstream not initialized")
	}
	msg := nats.NewMsg(subject)
	msg.Data = payload
	if msgID != "" {
		msg.Header.Set(nats.MsgIdHdr, msgID)
	}
	_, err := c.js.PublishMsg(msg, nats.Context(ctx))
	return err
}

func streamSubjects(cfg config.NATS) []string {
	return []string{cfg.SubjectPrefix + ".>"}
}

func ensureStream(ctx context.Context, js nats.JetStreamContext, cfg config.NATS) error {
	subjects := streamSubjects(cfg)

	info, err := js.StreamInfo(cfg.Stream, nats.Context(ctx))
	if err == nil {
		if !slices.Equal(info.Config.Subjects, subjects) {
			info.Config.Subjects = subjects
			_, err = js.UpdateStream(&info.Config, nats.Context(ctx))
		}
		return err
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:       cfg.Stream,
		Subjects:   subjects,
		Storage:    nats.FileStorage,
		Retention:  nats.LimitsPolicy,
		Duplicates: cfg.DuplicateWindow,
	}, nats.Context(ctx))
	return err
}
