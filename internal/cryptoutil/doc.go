// Package cryptoutil holds the hashing helpers used to verify admin UI
// bundles and tag rendered documents.
package cryptoutil
