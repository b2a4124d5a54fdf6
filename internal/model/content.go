package model

// ManifestEntry describes one file within a content bundle: its size and
// content hash, as reported by the Content Store and compared by workers
// during incremental sync.
type ManifestEntry struct {
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Manifest maps a bundle-relative path to its entry.
type Manifest map[string]ManifestEntry

// BundleDirs are the fixed content subdirectories distributed to every
// worker.
var BundleDirs = []string{"playbooks", "inventory", "library", "callback_plugins"}
