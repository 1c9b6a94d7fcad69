package middleware

import (
	"sync"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
)

var (
	metricsMu  sync.Mutex
	collectors = map[string]*fiberprometheus.FiberPrometheus{}
)

// InitMetrics returns the HTTP request metrics collector for the service.
// Collectors register with the default registry, so each service name is
// created once per process.
func InitMetrics(serviceName string) *fiberprometheus.FiberPrometheus {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	if p, ok := collectors[serviceName]; ok {
		return p
	}
	p := fiberprometheus.New(serviceName)
	collectors[serviceName] = p
	return p
}

// MetricsMiddleware records request count and latency.
func MetricsMiddleware(p *fiberprometheus.FiberPrometheus) fiber.Handler {
	return p.Middleware
}
