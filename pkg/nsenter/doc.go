// Package nsenter manages named network namespaces and provides the
// scoped "run inside a namespace" primitive used by the topology layer.
//
// All namespace switching operates on the calling OS thread. The package
// therefore locks the goroutine to its thread for the duration of a scope
// and refuses nested or concurrent scopes: topology work is strictly
// sequential, and a second concurrent scope on the same thread would
// leave the namespace association undefined.
package nsenter
