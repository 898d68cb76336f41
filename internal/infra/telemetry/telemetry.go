package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zaedhealth/identity-service/internal/infra/config"
)

// Provider holds the Prometheus registry and service-level collectors.
type Provider struct {
	registry  *prometheus.Registry
	namespace string
	buildInfo *prometheus.GaugeVec
}

// Attach builds a dedicated registry with process-level collectors so the
// /metrics endpoint does not depend on the global default registry.
func Attach(cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	namespace := cfg.Telemetry.MetricsNamespace
	if namespace == "" {
		namespace = "identity"
	}

	registry := prometheus.NewRegistry()

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Service identity labels, always 1.",
	}, []string{"service", "environment"})
	if err := registry.Register(buildInfo); err != nil {
		return nil, fmt.Errorf("register build info collector: %w", err)
	}
	buildInfo.WithLabelValues(cfg.App.Name, cfg.App.Env).Set(1)

	return &Provider{
		registry:  registry,
		namespace: namespace,
		buildInfo: buildInfo,
	}, nil
}

// Registry exposes the registry for collector registration and scraping.
func (p *Provider) Registry() *prometheus.Registry {
	return p.registry
}

// Namespace reports the metric namespace collectors should use.
func (p *Provider) Namespace() string {
	return p.namespace
}
