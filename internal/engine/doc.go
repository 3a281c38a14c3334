// Package engine is the headless CMS behind the admin UI: it routes a JSON
// API over the configured lists and items, validates documents against their
// schemas, and persists them through a Store.
package engine
