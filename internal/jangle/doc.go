// Package jangle turns a loosely-typed content configuration into validated
// schemas, starts the CMS engine with it, and mounts the admin UI next to
// the engine's API.
//
// Start runs a single attempt. The caller decides what to do with the
// returned error; nothing here exits the process or reads the environment
// except through Options.Getenv.
package jangle
