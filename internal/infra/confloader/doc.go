// Package confloader loads layered configuration with koanf.
//
// Sources are applied in order, later ones winning:
//
//  1. values already present in the target struct (defaults)
//  2. the YAML configuration file
//  3. AUTHCORE_* environment variables
//  4. an explicit override map (CLI flags, tests)
//
// Environment keys use a double underscore between sections and keep single
// underscores inside a key: AUTHCORE_SESSION__ACCESS_TOKEN_VALIDITY maps to
// session.access_token_validity.
//
// Watcher reports edits to the configuration file so the server can reload
// without a restart.
package confloader
