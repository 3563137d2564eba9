// Package memory provides an in-process Store backed by sharded maps.
//
// Every key is prefixed with the tenant's storage key, so tenants never see
// each other's rows. Data does not survive a restart; the store is meant for
// tests and single-node development.
//
// All operations are safe for concurrent use. Session writes take a store
// lock so the primary map and the user index change together.
package memory
