package config

// InstrumentationConfig defines the configuration for metrics reporting.
type InstrumentationConfig struct {
	// When true, Prometheus metrics are served under /metrics by the HTTP API.
	Prometheus bool `mapstructure:"prometheus" yaml:"prometheus" comment:"Enable Prometheus metrics on the HTTP API /metrics route"`

	// Instrumentation namespace.
	Namespace string `mapstructure:"namespace" yaml:"namespace" comment:"Namespace for metrics"`
}

// DefaultInstrumentationConfig returns a default configuration for metrics
// reporting.
func DefaultInstrumentationConfig() InstrumentationConfig {
	return InstrumentationConfig{
		Prometheus: false,
		Namespace:  "evreg",
	}
}

// IsPrometheusEnabled returns true if Prometheus metrics are enabled.
func (cfg InstrumentationConfig) IsPrometheusEnabled() bool {
	return cfg.Prometheus
}
