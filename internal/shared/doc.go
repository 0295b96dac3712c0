// Package shared holds helpers used across packages. Its testutil
// subpackage provides an in-memory warehouse and a capturing slog handler
// for tests.
package shared
