package artifacts

import _ "embed"

// Default files written into a new storage root

//go:embed global/settings.yaml
var GlobalSettings []byte
