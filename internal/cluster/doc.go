// Package cluster groups box centres into object instances.
//
// Responsibilities: flat-kernel mean shift over 2D points, ranking clusters
// by population and the per-image instance count (mode of per-worker box
// counts). Everything here is a pure function of its inputs; no filesystem
// or image access is allowed in this package.
package cluster
