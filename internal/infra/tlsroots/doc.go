// Package tlsroots builds TLS configurations from PEM files.
//
// Pool and ClientConfig set up outbound connections, such as the Redis
// store, with custom CA roots and optional client certificates. Watcher
// serves the HTTPS certificate and swaps it when the files on disk change,
// so certificates can be rotated without a restart.
package tlsroots
