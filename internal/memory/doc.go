// Package memory provides a heap usage monitor with high and critical
// water marks. It is used to shed best-effort work, such as thumbnail
// preloading, when the process approaches its memory limit. Pressure
// clears only once usage drops back below the high water mark, giving
// the signal hysteresis.
package memory
