// Package axiom contains the core contracts of the axiom virtual file system:
// entries and their capability modes, the backend [FileSystem] interface, the
// context interfaces that mediate every open and execute operation, and the
// shared [Ephemeral] lifecycle those contexts are built on.
//
// Concrete backends live in sub-packages (filesystem, backends/...) and are
// composed into one namespace by the manager package.
package axiom
