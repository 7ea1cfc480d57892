package workflow

import "context"

// ComponentHealth summarizes the readiness of one dependency.
type ComponentHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) ComponentHealth

// Healthy constructs a ready ComponentHealth record.
func Healthy(name string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy ComponentHealth record with detail.
func Unhealthy(name, detail string) ComponentHealth {
	return ComponentHealth{Name: name, Ready: false, Detail: detail}
}

// Pinger adapts a Ping-style probe into a HealthCheck.
func Pinger(name string, ping func(context.Context) error) HealthCheck {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return Unhealthy(name, err.Error())
		}
		return Healthy(name)
	}
}
