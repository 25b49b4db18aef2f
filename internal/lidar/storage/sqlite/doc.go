// Package sqlite records completed sections and the runs that produced
// them in a SQLite database.
//
// The schema is managed by golang-migrate from migrations embedded in the
// binary, so a fresh file is usable after Open. Points are stored packed,
// four bytes each, in the same little-endian (dir, len) layout the UDP
// driver receives.
package sqlite
