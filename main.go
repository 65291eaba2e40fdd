package main

import (
	"github.com/aemtools/aemcli/cmd"
	"github.com/aemtools/aemcli/cmd/util"
)

func main() {
	defer util.HandlePanic()
	cmd.Execute()
}
