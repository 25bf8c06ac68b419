// Package shared holds code used across layers that belongs to none of them.
//
// testutil captures slog records so tests can assert on what a component
// logged, including attributes bound with Logger.With such as "component".
package shared
