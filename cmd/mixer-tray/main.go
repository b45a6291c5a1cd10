// mixer-tray is a per-application volume mixer for the system tray.
package main

import "os"

var (
	// Version is set via ldflags at build time
	Version = "dev"
	// Commit is set via ldflags at build time
	Commit = "unknown"
)

func main() {
	os.Exit(execute())
}
