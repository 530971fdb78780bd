// Package flows contains the orchestrators behind the Engine's login and logout
// operations.
//
// Each flow function accepts a typed dependency struct of plain functions and
// returns results without side effects beyond those dependencies, so flows are unit
// tested with fakes and the Engine type stays thin.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import loanGuard (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency functions.
package flows
