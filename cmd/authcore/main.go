// Command authcore runs the authentication service and its maintenance tasks.
package main

import (
	"fmt"
	"os"
)

const usage = `usage: authcore <command> [flags]

commands:
  serve        run the HTTP service
  migrate      apply the database schema
  create-user  create a principal
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "serve":
		err = runServe(args)
	case "migrate":
		err = runMigrate(args)
	case "create-user":
		err = runCreateUser(args)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "authcore: %v\n", err)
		os.Exit(1)
	}
}
