package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/splitpal/splitpal/internal/cli"
)

func main() {
	// A .env file is optional; real environment variables win.
	_ = godotenv.Load()

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
