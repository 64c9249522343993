package bootstrap

import (
	"shutter/internal/config"
	"shutter/internal/observability"
)

// Tracing derives the tracer settings for service from cfg. A disabled
// configuration yields an empty exporter.
func Tracing(cfg *config.Config, service, version string) observability.TracingConfig {
	tc := observability.TracingConfig{
		Service:     service,
		Version:     version,
		Environment: cfg.Env,
		Endpoint:    cfg.OTLPEndpoint,
		Insecure:    cfg.OTLPInsecure,
		SampleRatio: cfg.TracingSampleRatio,
	}
	if cfg.TracingEnabled {
		tc.Exporter = cfg.TracingExporter
	}
	return tc
}
