// Package manifest loads and validates the provider description document
// that drives the whole runtime:
//   - standard_schema: canonical generation parameters and their constraints
//   - providers: base URL, auth descriptor, payload format, field mappings,
//     and the streaming event_map (ordered match/extract rules)
//   - models: the catalog binding model ids to providers
//
// Loading is fail-fast and all-or-nothing: every unresolved reference and
// malformed expression in the document is reported in one ValidationError,
// and no partially valid Manifest is ever returned. Match expressions and
// string patterns are compiled during load so evaluation never errors.
package manifest
