// Package database manages the single pgxpool.Pool backing the audit log.
//
// Adapted from the teacher's internal/database.NewPools/Connect, the
// teacher opens two pools (Postgres + TimescaleDB) from component DB
// fields (host/port/user/password); this system has exactly one database
// (the audit log) and the config carries it as a single DSN string, so
// BuildConnString's component assembly has no caller here and is dropped
// (see DESIGN.md) in favor of passing the DSN straight through.
package database
