// Package schema turns content field definitions into validated schema
// instances.
//
// A field is one of three kinds: a primitive (text, date, number, boolean),
// a group of nested fields, or a relationship to another list. Decode reads
// the loosely-typed trees found in config files, New validates a Definition
// and compiles it to a JSON Schema used to check documents.
package schema
