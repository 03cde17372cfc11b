// internal/service/deliveries.go
package service

import (
	"context"
	"errors"
	"sync"

	"repo-sync/internal/github"
	"repo-sync/internal/model"
)

const (
	defaultDeliveryQueueSize = 100
	defaultDeliveryWorkers   = 2
)

// ErrDeliveryQueueFull is returned when a delivery cannot be queued.
var ErrDeliveryQueueFull = errors.New("webhook delivery queue is full")

type queuedDelivery struct {
	delivery Delivery
	event    *model.Event
}

// deliveryWorkers applies accepted deliveries off the request path.
type deliveryWorkers struct {
	queue   chan queuedDelivery
	workers int

	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func newDeliveryWorkers(size, workers int) *deliveryWorkers {
	if size < 1 {
		size = defaultDeliveryQueueSize
	}
	if workers < 1 {
		workers = defaultDeliveryWorkers
	}
	return &deliveryWorkers{queue: make(chan queuedDelivery, size), workers: workers}
}

// AcceptDelivery decodes d and queues it for the delivery workers. Pings are
// recorded right away and never queued. A decode failure returns a nil event.
func (s *Service) AcceptDelivery(ctx context.Context, d Delivery) (*model.Event, error) {
	ev, err := github.ParseEvent(d.EventType, d.Payload)
	if err != nil {
		return nil, err
	}
	if ev.Ping != nil {
		s.recordDelivery(ctx, d, ev, nil)
		return ev, nil
	}

	select {
	case s.deliveries.queue <- queuedDelivery{delivery: d, event: ev}:
		s.logger.Debug("Delivery queued", "delivery_id", d.ID, "event", d.EventType, "repo", ev.RepoFullName)
		return ev, nil
	default:
		s.logger.Warn("Delivery queue full, rejecting delivery", "delivery_id", d.ID, "event", d.EventType)
		return ev, ErrDeliveryQueueFull
	}
}

// PendingDeliveries returns the number of accepted deliveries not yet picked up.
func (s *Service) PendingDeliveries() int {
	return len(s.deliveries.queue)
}

// Start launches the delivery workers.
func (s *Service) Start(ctx context.Context) {
	w := s.deliveries
	w.mu.Lock()
	defer w.mu.Unlock()

	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			s.runDeliveries(ctx)
		}()
	}
	s.logger.Info("Webhook delivery workers started", "workers", w.workers)
}

// Stop cancels the delivery workers and waits for them to return.
func (s *Service) Stop() {
	w := s.deliveries
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
	s.logger.Info("Webhook delivery workers stopped", "dropped", len(w.queue))
}

func (s *Service) runDeliveries(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case qd := <-s.deliveries.queue:
			if err := s.applyDelivery(ctx, qd.delivery, qd.event); err != nil {
				s.logger.Error("Failed to apply webhook event", "delivery_id", qd.delivery.ID,
					"event", qd.delivery.EventType, "error", err)
			}
		}
	}
}
