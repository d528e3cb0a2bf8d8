// Package osm implements read-only clients for the two OSM interfaces the
// reconciler consults when a lifecycle operation completes: the northbound
// interface (NBI) for NS, VNF, VIM and package records, and the OpenMANO
// resource orchestrator (RO) for tenant ownership of a deployed instance.
package osm
