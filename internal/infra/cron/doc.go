// Package cron runs periodic per-tenant maintenance tasks.
//
// Each task is registered once as a tenant-scoped resource of the default
// tenant (key "cron.<name>"), so a second registration under the same name
// returns the running job instead of starting another loop.
package cron
