package config

// Version is the caseforge binary version.
// Set at build time via: -ldflags "-X github.com/caseforge/caseforge/internal/config.Version=<tag>"
// Defaults to "dev" when built without ldflags.
var Version = "dev"
