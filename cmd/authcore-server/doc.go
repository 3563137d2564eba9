// Package main provides the entry point for authcore-server.
//
// authcore-server issues and verifies sessions for multi-tenant
// applications: access and refresh tokens, signing key rotation, JWKS
// publication and per-user metadata, over an HTTP API.
//
// Usage:
//
//	authcore-server serve --config /etc/authcore/config.yaml
//	authcore-server config check --config /etc/authcore/config.yaml
//	authcore-server storage backup --config config.yaml --file backup.bak
//	authcore-server version
package main
