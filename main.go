package main

import (
	"github.com/beamlink/beamcast/cmd"
	"github.com/beamlink/beamcast/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cmd.Execute()
}
