package main

import "github.com/pabra/hilfmir/cmd"

// Version and BuildTime are set at build time.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, buildTime)
	cmd.Execute()
}
