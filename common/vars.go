// Package common holds build information and logger setup shared by the commands.
package common

// Version is overridden at build time with -ldflags "-X ...common.Version=..."
var Version = "dev"

const PackageName = "content-publisher"
