// Command sqigl is a version-aware SQL schema migration tool.
package main

import (
	_ "github.com/joho/godotenv/autoload"

	"github.com/sqigl/sqigl/cmd/sqigl/command"
)

func main() {
	command.Execute()
}
