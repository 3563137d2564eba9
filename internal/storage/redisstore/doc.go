// Package redisstore implements service.Store on Redis so that several
// server processes can share sessions, signing keys and metadata.
//
// Every tenant owns a disjoint key space:
//
//	<prefix>:<tenant>:s:<handle>   session JSON
//	<prefix>:<tenant>:u:<user>     SET of session handles
//	<prefix>:<tenant>:exp          ZSET handle -> expiry (ms)
//	<prefix>:<tenant>:k            HASH key id -> signing key JSON
//	<prefix>:<tenant>:kv           HASH name -> key/value JSON
//	<prefix>:<tenant>:m            HASH user -> metadata JSON
//	<prefix>:<tenant>:a            ZSET user -> last active (ms)
//
// Expired sessions are not given a Redis TTL. They are removed by
// DeleteExpiredSessions so the user index never points at vanished rows.
package redisstore
