// Package output renders command results for authcore-server.
//
//   - formatter.go: Formatter interface and factory
//   - text.go: aligned "key value" lines, the default
//   - json.go: indented JSON
//   - yaml.go: YAML through the koanf YAML parser
//
// Structured values are flattened with the same dotted keys the
// configuration loader accepts, so "config show" output can be pasted back
// as overrides.
package output
