package main

import (
	"github.com/Laisky/docspace/cmd"
)

func main() {
	cmd.Execute()
}
