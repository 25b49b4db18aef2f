// Package sections turns a device-specific lidar point stream into completed
// angular sections.
//
// A full device revolution is split into SectorCount fixed sectors. The
// Harness drives a Driver through a receive/parse loop, demotes points the
// active Filter rejects, and hands every completed sector to the caller's
// continuation. The Collector does the bucketing on its own and can be used
// without a Harness.
package sections
