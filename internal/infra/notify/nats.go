package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"workflow-dashboard/internal/domain/model"
)

type publisher interface {
	Publish(subject string, data []byte) error
}

// NATS publishes a JobEvent per finished job on subject.
type NATS struct {
	nc      *nats.Conn
	pub     publisher
	subject string
	log     *zerolog.Logger
}

func ConnectNATS(url, subject string, logger *zerolog.Logger) (*NATS, error) {
	if url == "" {
		return nil, errors.New("nats notifier needs a url")
	}
	nc, err := nats.Connect(url,
		nats.Name("workflow-dashboard"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	n := newNATS(nc, subject, logger)
	n.nc = nc
	return n, nil
}

func newNATS(pub publisher, subject string, logger *zerolog.Logger) *NATS {
	if subject == "" {
		subject = "jobs.finished"
	}
	l := logger.With().Str("component", "NATSNotifier").Logger()
	return &NATS{pub: pub, subject: subject, log: &l}
}

func (n *NATS) JobFinished(_ context.Context, job *model.Job) error {
	b, err := json.Marshal(eventOf(job))
	if err != nil {
		return fmt.Errorf("encode job event: %w", err)
	}
	if err := n.pub.Publish(n.subject, b); err != nil {
		return fmt.Errorf("nats publish %s: %w", n.subject, err)
	}
	return nil
}

func (n *NATS) Close() error {
	if n.nc == nil {
		return nil
	}
	return n.nc.Drain()
}
