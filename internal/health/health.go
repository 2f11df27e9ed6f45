// Package health runs the background service-probe loop: periodic
// concurrent HTTP GETs against every registered service's ping URL.
package health

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/fleetforge/coordinator/internal/metrics"
	"github.com/fleetforge/coordinator/internal/store"
	"github.com/fleetforge/coordinator/internal/types"
)

// DefaultSweepInterval is the time between probe rounds.
const DefaultSweepInterval = 30 * time.Second

// DefaultProbeTimeout bounds any single GET; a stuck probe never
// delays the next sweep.
const DefaultProbeTimeout = 10 * time.Second

type Prober struct {
	store         store.Store
	client        *http.Client
	sweepInterval time.Duration
	metrics       *metrics.Registry
}

func New(s store.Store, sweepInterval time.Duration) *Prober {
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	return &Prober{
		store:         s,
		client:        &http.Client{Timeout: DefaultProbeTimeout},
		sweepInterval: sweepInterval,
	}
}

// SetMetrics attaches a metrics registry. Optional.
func (p *Prober) SetMetrics(m *metrics.Registry) {
	p.metrics = m
}

// Sweep probes every registered service concurrently and joins before
// returning, logging only UP<->DOWN transitions to avoid noise.
func (p *Prober) Sweep(ctx context.Context) error {
	services, err := p.store.ListAllServicesForProbing()
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, svc := range services {
		wg.Add(1)
		go func(svc *types.Service) {
			defer wg.Done()
			p.probeOne(ctx, svc)
		}(svc)
	}
	wg.Wait()
	return nil
}

func (p *Prober) probeOne(ctx context.Context, svc *types.Service) {
	reqCtx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	success := p.get(reqCtx, svc.PingURL)
	now := time.Now()

	if err := p.store.RecordProbeResult(svc.ID, success, now); err != nil {
		log.Printf("[HEALTH] failed to record probe result for %q: %v", svc.Name, err)
		return
	}

	if p.metrics != nil {
		if success {
			p.metrics.ProbeUp.Inc()
		} else {
			p.metrics.ProbeDown.Inc()
		}
	}

	wasUp := svc.Status == types.ServiceUp
	if success && !wasUp {
		log.Printf("[HEALTH] service %q: DOWN -> UP", svc.Name)
		if p.metrics != nil {
			p.metrics.ProbeTransitions.Inc()
		}
	} else if !success && wasUp {
		log.Printf("[HEALTH] service %q: UP -> DOWN", svc.Name)
		if p.metrics != nil {
			p.metrics.ProbeTransitions.Inc()
		}
	}
}

func (p *Prober) get(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// Run starts the periodic sweep loop, stopping when ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.sweepInterval)
	defer ticker.Stop()

	log.Println("[HEALTH] service probe loop started")
	for {
		select {
		case <-ctx.Done():
			log.Println("[HEALTH] service probe loop stopped")
			return
		case <-ticker.C:
			if err := p.Sweep(ctx); err != nil {
				log.Printf("[HEALTH] sweep error: %v", err)
			}
		}
	}
}
