// Package metrics holds the Prometheus collectors and the HTTP metrics middleware.
// Collectors live on the default registry and are registered explicitly from main.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

func mustRegisterOnce(once *sync.Once, cs ...prometheus.Collector) {
	once.Do(func() { prometheus.MustRegister(cs...) })
}
