// The main package for the buddi-chain executable.
package main

import (
	"github.com/anithp/buddi-chain/cmd"
)

func main() {
	cmd.Execute()
}
