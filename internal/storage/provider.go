package storage

import "slidecast/internal/ports"

// Provider is the storage contract used by the asset catalog and the storage
// publisher. It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider
