// Package domain defines the in-memory MITRE ATT&CK model used by attacknav.
//
// A Domain is one parsed dataset version (for example enterprise-attack v14).
// It is built once by the loader and is read-only afterwards; reloading a
// dataset produces a new Domain value rather than patching an existing one.
//
// # Entities
//
// Every STIX-derived entity embeds Base, which carries the STIX id, the
// external ATT&CK id (T1059, G0007, M1038, ...), a display name and the
// revoked/deprecated lifecycle flags.
//
// Technique is the central entity. A technique can belong to several tactics,
// and the unit that layers annotate is the technique-tactic union id
// ("T1059^execution"), not the bare ATT&CK id.
//
// Tactic and Matrix describe the column layout: a matrix lists its tactics in
// order through tactic_refs.
//
// Mitigation, Group, Software, Campaign, DataSource, DataComponent and Note
// complete the knowledge base.
//
// # Relationships
//
// Cross references are never stored as pointers between entities. They live
// in the Relationships adjacency maps keyed by STIX id, which keeps the model
// acyclic and trivially serializable. Domain exposes lookup helpers that
// resolve those ids back to entities.
//
// # Design Principles
//
// - Entities are immutable once the Domain is indexed
// - No database or network dependencies
// - Lookups by STIX id, ATT&CK id and union id are O(1)
package domain
