package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/teranos/ctxeng/cmd/ctxeng/commands"
	"github.com/teranos/ctxeng/errors"
	"github.com/teranos/ctxeng/logger"
)

func main() {
	// A .env next to the binary's working directory feeds OPENROUTER_API_KEY
	// and CTXENG_* settings; its absence is normal.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: failed to read .env: %v\n", err)
	}

	root := commands.NewRootCmd()
	err := root.Execute()
	logger.Cleanup()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", errors.UserMessage(err))
		os.Exit(1)
	}
}
