// Package policyset loads a directory of ECL sources into gateway realms
// and keeps the gateway in sync with it.
//
// # Layout
//
// A policy set directory holds any number of .ecl files and an optional
// realms.yaml manifest:
//
//	realms:
//	  finance:
//	    entry: finance_entry
//	    damping: [0.8, 0.8, 0.8, 0.8, 1, 1]
//	    policies:
//	      api: [transfer_limit]
//	      governance: [treasury_vote]
//
// Policy names are global to the set. Loading fails when two files
// declare the same policy or when the manifest names an unknown one.
//
// # Hot reload
//
// Watcher reloads the set after a quiet period following file changes
// and swaps the gateway registry in one step. A set that fails to load
// leaves the previous registry in place.
package policyset
