package pub

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	notificationsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "auction_notifications_dropped_total",
		Help: "Notifications dropped because the dispatch queue was full",
	})
	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "auction_notifications_failed_total",
		Help: "Notifications the sink failed to deliver",
	}, []string{"channel"})
)

type job struct {
	channel string
	target  string
	kind    string
	payload any
}

// Dispatcher decouples callers from the sink: Notify and Broadcast enqueue
// and return immediately; a single worker delivers in order.
type Dispatcher struct {
	sink    Broadcaster
	queue   chan job
	timeout time.Duration
	logger  *zap.Logger

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

func NewDispatcher(sink Broadcaster, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Dispatcher{
		sink:     sink,
		queue:    make(chan job, queueSize),
		timeout:  5 * time.Second,
		logger:   logger,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go d.worker()
}

// Stop delivers whatever is still queued, then returns.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopChan) })
	<-d.done
}

func (d *Dispatcher) Notify(_ context.Context, recipientID, kind string, payload any) error {
	d.enqueue(job{channel: ChannelNotify, target: recipientID, kind: kind, payload: payload})
	return nil
}

func (d *Dispatcher) Broadcast(_ context.Context, topic, kind string, payload any) error {
	d.enqueue(job{channel: ChannelBroadcast, target: topic, kind: kind, payload: payload})
	return nil
}

func (d *Dispatcher) enqueue(j job) {
	select {
	case <-d.stopChan:
		d.drop(j, "dispatcher stopped")
		return
	default:
	}
	select {
	case d.queue <- j:
	default:
		d.drop(j, "queue full")
	}
}

func (d *Dispatcher) drop(j job, reason string) {
	notificationsDropped.Inc()
	d.logger.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("channel", j.channel),
		zap.String("target", j.target),
		zap.String("kind", j.kind))
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for {
		select {
		case j := <-d.queue:
			d.deliver(j)
		case <-d.stopChan:
			for {
				select {
				case j := <-d.queue:
					d.deliver(j)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) deliver(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	var err error
	if j.channel == ChannelNotify {
		err = d.sink.Notify(ctx, j.target, j.kind, j.payload)
	} else {
		err = d.sink.Broadcast(ctx, j.target, j.kind, j.payload)
	}
	if err != nil {
		notificationsFailed.WithLabelValues(j.channel).Inc()
		d.logger.Warn("notification delivery failed",
			zap.String("channel", j.channel),
			zap.String("target", j.target),
			zap.String("kind", j.kind),
			zap.Error(err))
	}
}
