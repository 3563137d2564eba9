// Package storage holds the persistent service.Store backends.
//
// BadgerStore keeps every tenant's rows in one embedded Badger database,
// separated by the tenant storage key prefix. The redisstore subpackage
// serves deployments that share state between several server processes,
// and memory is used for tests and the "memory" storage kind.
//
// Open picks the backend named in the storage configuration.
// NewEncryptWriter and NewDecryptReader wrap Badger backup streams with
// passphrase-based encryption.
package storage
