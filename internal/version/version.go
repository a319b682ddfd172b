package version

const APP = "liquefier"

// Set at build time with -ldflags "-X liquefier/internal/version.VERSION=..."
var (
	VERSION = "dev"
	COMMIT  = "none"
)
