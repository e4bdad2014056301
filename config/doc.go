// Package config loads application settings and the named profiles that
// parameterise a run.
//
// Settings are resolved in three layers: built-in defaults, then an optional
// YAML file, then RAGMESH_* environment variables. Profiles live in a
// Registry seeded with a "default" profile of every kind; further profiles
// are read from YAML files in the profiles directory:
//
//	retrieval.yaml  fusion.yaml  context.yaml
//	judge.yaml      chat.yaml    workflows.yaml
//
// Each file maps profile ids to profile bodies. Fields omitted from a body
// keep the value of the built-in default profile.
package config
