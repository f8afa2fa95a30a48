// Package repository defines the data access interfaces for attacknav.
//
// Two kinds of records are persisted: layers, stored as their portable
// document form, and domain snapshots, the raw STIX bundles a domain
// version was last built from together with a content fingerprint. The
// snapshots let a service rebuild its domains without the network and skip
// re-parsing bundles that have not changed.
//
// The sqlite subpackage implements the interfaces on SQLite and migrates
// its schema on startup.
package repository
