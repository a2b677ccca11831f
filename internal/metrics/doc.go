// Package metrics defines the Prometheus collectors exported by the
// application. All collectors are registered with the default registry
// via promauto at package load and served by the /metrics endpoint.
package metrics
