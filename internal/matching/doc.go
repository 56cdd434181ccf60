// Package matching evaluates proxy field matchers locally.
//
// A field matcher pairs a kind with a pattern. The kinds understood here are
// the ones the proxy itself supports:
//
//   - exact: byte-for-byte equality
//   - glob: "*" wildcards that also span "/" separators
//   - regex: unanchored RE2 search
//   - xpath: the document contains an element selected by the path
//   - json: semantic JSON equality (key order and whitespace ignored)
//   - jsonPath: the expression selects at least one value
//   - xml: canonical XML equality (attribute order and indentation ignored)
//
// Unknown kinds never match. Several matchers on the same field combine with AND.
package matching
