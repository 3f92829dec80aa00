// Package registry holds the plug-in contracts of the relay binaries: the
// Service lifecycle used by the service registry and the command table used
// by the execution agent.
package registry

// Service is the interface for all plug-in services
type Service interface {
	Start() error
	Stop() error
}
