// Package host defines the capability boundary between the ECL VM and
// the rest of a node.
//
// The VM never reaches into trust engines, identity resolvers or storage
// directly. Everything it knows about the world comes through a Host:
//
//   - Facts: trust vectors, credentials, balances, DID resolution, time
//   - Log and GetMetric for observability
//   - Store: keyed get/put/delete/exists/count/list scoped to a named
//     store that is either shared by a realm or personal to the caller
//   - Schema: versioned store schema evolution with a challenge period
//     for breaking changes
//
// Adapters may support only a subset: returning ErrNotSupported from
// the Store or Schema methods is part of the contract. StubHost covers
// facts only and is used by tests and tooling; pkg/ecl/host/statehost
// and pkg/ecl/host/storehost are the in-memory and persistent adapters.
package host
