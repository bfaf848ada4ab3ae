// Package store declares the run-ledger types and repository interface.
// Implementations live in the storage packages; this package must not import
// database drivers or concrete clients.
package store
