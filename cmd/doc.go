// Package cmd implements the command-line interface of fsKV. All commands
// work directly on a store directory; there is no server.
//
// The package is organized into several subpackages:
//
//   - admin: Commands to create a store and to print its statistics (init, stats)
//   - kv: Commands for key-value operations (get, set, alter, keys, etc.) and a benchmark
//   - lock: Commands to hold the lock of a key, e.g. to watch other processes wait
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable FSKV_<FLAG> (e.g.
// FSKV_ROOT=/var/lib/fskv), in a .env file or in a config file (--config).
//
// See fskv -help for a list of all commands.
package cmd
