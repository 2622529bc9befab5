package main

import (
	"os"

	"overhaul/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
