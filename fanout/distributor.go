package fanout

import (
	"log/slog"

	"github.com/c360/canbridge/errors"
	"github.com/c360/canbridge/metric"
	"github.com/c360/canbridge/pkg/buffer"
	"github.com/c360/canbridge/wire"
)

// DefaultBackupCapacity bounds the backup ring of recently validated frames.
const DefaultBackupCapacity = 1000

// Distributor fans a validated envelope out to two independent sinks: the
// broadcast publisher and a bounded backup ring. A broadcast failure never
// keeps the frame out of the backup, and neither sink blocks the caller.
type Distributor struct {
	publisher Publisher
	subject   string
	backup    buffer.Buffer[*wire.Envelope]
	logger    *slog.Logger
	metrics   *metric.Registry
}

// DistributorDeps holds the distributor's dependencies.
type DistributorDeps struct {
	Publisher Publisher
	Subject   string
	Capacity  int
	Logger    *slog.Logger
	Metrics   *metric.Registry
}

// NewDistributor creates a distributor with a DropOldest backup ring.
func NewDistributor(deps DistributorDeps) (*Distributor, error) {
	if deps.Publisher == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "fanout.Distributor", "NewDistributor", "publisher is required")
	}
	subject := deps.Subject
	if subject == "" {
		subject = DefaultSubject
	}
	capacity := deps.Capacity
	if capacity <= 0 {
		capacity = DefaultBackupCapacity
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	backup, err := buffer.NewCircular[*wire.Envelope](capacity,
		buffer.WithOverflowPolicy[*wire.Envelope](buffer.DropOldest))
	if err != nil {
		return nil, errors.Wrap(err, "fanout.Distributor", "NewDistributor", "create backup buffer")
	}

	return &Distributor{
		publisher: deps.Publisher,
		subject:   subject,
		backup:    backup,
		logger:    logger.With("component", "fanout.Distributor"),
		metrics:   deps.Metrics,
	}, nil
}

// Distribute broadcasts env and records it in the backup ring. The backup
// write happens regardless of broadcast outcome; the broadcast error is
// returned for accounting only.
func (d *Distributor) Distribute(env *wire.Envelope) error {
	pubErr := d.publisher.Publish(d.subject, env)
	if pubErr != nil {
		if d.metrics != nil {
			d.metrics.Core.SendFailures.Inc()
		}
		d.logger.Debug("broadcast failed", "identifier", env.Identifier, "error", pubErr)
	} else if d.metrics != nil {
		d.metrics.Core.FramesPublished.Inc()
	}

	if err := d.backup.Write(env); err != nil {
		// Only happens once the ring is closed during shutdown.
		d.logger.Debug("backup write failed", "error", err)
	}
	return pubErr
}

// DrainBackup removes and returns up to max frames from the backup ring in
// arrival order. max <= 0 drains everything.
func (d *Distributor) DrainBackup(max int) []*wire.Envelope {
	if max <= 0 {
		max = d.backup.Capacity()
	}
	return d.backup.ReadBatch(max)
}

// BackupSnapshot returns the buffered frames oldest-first without
// consuming them.
func (d *Distributor) BackupSnapshot() []*wire.Envelope {
	return d.backup.Snapshot()
}

// BackupSize reports how many frames the backup currently holds.
func (d *Distributor) BackupSize() int {
	return d.backup.Size()
}

// BackupStats exposes the backup ring counters.
func (d *Distributor) BackupStats() *buffer.Statistics {
	return d.backup.Stats()
}

// Close shuts the backup ring and the publisher.
func (d *Distributor) Close() error {
	if err := d.backup.Close(); err != nil {
		return errors.Wrap(err, "fanout.Distributor", "Close", "close backup buffer")
	}
	return d.publisher.Close()
}
