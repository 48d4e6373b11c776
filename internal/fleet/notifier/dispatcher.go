// Package notifier publishes TaskInstance transitions to the robots and to
// observers over MQTT.
package notifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/pkg/metrics"
	"github.com/autopeer-io/amrfleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
)

var (
	// ErrQueueFull is returned by Notify when the event had to be dropped.
	ErrQueueFull = errors.New("dispatch queue full")

	// ErrStopped is returned by Notify after the worker has shut down.
	ErrStopped = errors.New("dispatcher stopped")
)

// InstanceReader reads the committed state of a TaskInstance.
type InstanceReader interface {
	Get(ctx context.Context, id string) (*model.TaskInstance, error)
}

// Config configures a Dispatcher.
type Config struct {
	Publisher pkgmqtt.Publisher
	Topics    *topic.TopicBuilder
	QoS       int

	// Instances, when set, is consulted before a status update is
	// published. Events that no longer match the stored instance are
	// superseded by a later transition and are not published.
	Instances InstanceReader

	// BufferSize bounds the number of events waiting to be published.
	BufferSize int

	// DrainTimeout bounds the final flush when the worker stops.
	DrainTimeout time.Duration

	Retry   RetryConfig
	Breaker BreakerConfig
}

// Dispatcher is an asynchronous core.Notifier. Notify never blocks the
// caller; a single worker publishes events in the order they were accepted.
type Dispatcher struct {
	pub       pkgmqtt.Publisher
	instances InstanceReader
	topics    *topic.TopicBuilder
	qos       int
	retry     RetryConfig
	drain     time.Duration

	cb    *gobreaker.CircuitBreaker
	queue chan *model.TransitionEvent

	mu      sync.RWMutex
	stopped bool
	done    chan struct{}
}

var _ core.Notifier = (*Dispatcher)(nil)

// New creates a Dispatcher. Start must be called to begin publishing.
func New(cfg Config) *Dispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 5 * time.Second
	}
	if cfg.Topics == nil {
		cfg.Topics = topic.NewTopicBuilder("amr/v1")
	}
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Dispatcher{
		pub:       cfg.Publisher,
		instances: cfg.Instances,
		topics:    cfg.Topics,
		qos:       cfg.QoS,
		retry:     cfg.Retry,
		drain:     cfg.DrainTimeout,
		cb:        newBreaker(cfg.Breaker),
		queue:     make(chan *model.TransitionEvent, cfg.BufferSize),
		done:      make(chan struct{}),
	}
}

// Done is closed once Start has returned and the queue has been flushed.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

// Notify enqueues evt for publishing.
func (d *Dispatcher) Notify(_ context.Context, evt *model.TransitionEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		metrics.Dispatch.WithLabelValues(metrics.DispatchDropped).Inc()
		return ErrStopped
	}

	select {
	case d.queue <- evt:
		return nil
	default:
		metrics.Dispatch.WithLabelValues(metrics.DispatchDropped).Inc()
		log.Warn("Dispatch queue full, dropping transition", "instance", evt.InstanceID, "to", evt.To)
		return ErrQueueFull
	}
}

// Start publishes queued events until ctx is done, then flushes what is
// left within the drain timeout. It blocks.
func (d *Dispatcher) Start(ctx context.Context) error {
	log.Info("Dispatch worker started", "buffer", cap(d.queue))

	for {
		if ctx.Err() != nil {
			d.shutdown()
			return nil
		}
		select {
		case evt := <-d.queue:
			d.dispatch(ctx, evt)
		case <-ctx.Done():
			d.shutdown()
			return nil
		}
	}
}

func (d *Dispatcher) shutdown() {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), d.drain)
	defer cancel()
	d.flush(ctx)
	close(d.done)
	log.Info("Dispatch worker stopped")
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case evt := <-d.queue:
			d.dispatch(ctx, evt)
		default:
			return
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, evt *model.TransitionEvent) {
	msgs, err := d.messages(evt, d.current(ctx, evt))
	if err != nil {
		metrics.Dispatch.WithLabelValues(metrics.DispatchFailed).Inc()
		log.Error(err, "Failed to encode transition", "instance", evt.InstanceID)
		return
	}

	for _, m := range msgs {
		if err := d.publish(ctx, m); err != nil {
			metrics.Dispatch.WithLabelValues(metrics.DispatchFailed).Inc()
			log.Error(err, "Failed to publish transition", "instance", evt.InstanceID, "topic", m.topic)
			continue
		}
		metrics.Dispatch.WithLabelValues(metrics.DispatchPublished).Inc()
		log.Debug("Published transition", "instance", evt.InstanceID, "topic", m.topic)
	}
}

type message struct {
	topic   string
	retain  bool
	payload []byte
}

// current reports whether evt still describes the stored instance. Events
// are enqueued after their commit by concurrent writers, so an older event
// can arrive after a newer one; only the event matching the stored state
// may overwrite the retained status. Read failures count as current.
func (d *Dispatcher) current(ctx context.Context, evt *model.TransitionEvent) bool {
	if d.instances == nil {
		return true
	}
	inst, err := d.instances.Get(ctx, evt.InstanceID)
	if err != nil {
		log.Debug("Cannot verify transition against store", "instance", evt.InstanceID, "error", err.Error())
		return true
	}
	return inst.Status == evt.To && inst.CurrentActionIndex == evt.CurrentActionIndex
}

// messages renders the MQTT messages for evt: a status update unless a
// later transition superseded it, plus the command sequence for the robot
// when the instance was just assigned.
func (d *Dispatcher) messages(evt *model.TransitionEvent, current bool) ([]message, error) {
	var msgs []message
	if current {
		status, err := StatusPayload(evt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, message{topic: d.topics.InstanceStatus(evt.InstanceID), retain: true, payload: status})
	} else {
		metrics.Dispatch.WithLabelValues(metrics.DispatchStale).Inc()
		log.Debug("Skipping superseded status", "instance", evt.InstanceID, "to", evt.To, "index", evt.CurrentActionIndex)
	}

	if evt.From == model.InstanceQueued && evt.To == model.InstanceInProgress && evt.RobotName != "" {
		seq, err := SequencePayload(evt)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, message{topic: d.topics.RobotSequence(evt.RobotName), payload: seq})
	}
	return msgs, nil
}
