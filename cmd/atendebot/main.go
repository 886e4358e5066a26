// Command atendebot runs the Chácara da Paz WhatsApp concierge bot.
package main

import (
	"fmt"
	"os"

	"github.com/chacaradapaz/atendebot/cmd/atendebot/commands"
	"github.com/joho/godotenv"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// Load .env before anything reads the environment.
	_ = godotenv.Load()

	if err := commands.NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
