// Package ports defines the interfaces (ports) that external adapters must implement.
// The engine depends only on these; the MySQL, in-memory, YAML and Redis adapters
// under internal/infrastructure satisfy them.
package ports
