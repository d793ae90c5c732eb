package main

import (
	"go-soundcloud-download/cmd/soundcloud-downloader/cmd"
)

func main() {
	// Execute the root command (defined in cmd/root.go)
	cmd.Execute()
}
