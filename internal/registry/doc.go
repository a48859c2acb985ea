// Package registry implements the per-device service registry.
//
// A registry document is an XML file (asset administration shell layout)
// holding two element collections:
//
//   - Services: one child collection per service, keyed by idShort, with
//     Input, Output, DriverFunction and Effector properties.
//   - OperationalStates: boolean properties Idle, Active and Error, of which
//     exactly one is true.
//
// A Store loads the document into an in-memory index and writes the full
// document back on every mutation (write-through, atomic rename). Each
// document path is owned by at most one Store per process.
//
// Usage:
//
//	store, err := registry.Open("/var/lib/runchain/ned2.aas.xml", registry.Options{ID: "ned2"})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	if _, err := store.Query("Pick"); errors.Is(err, registry.ErrNotFound) {
//	    // Pick is not configured on this device
//	}
package registry
