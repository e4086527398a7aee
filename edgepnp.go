package main

import (
	"os"

	"github.com/jwzl/edgepnp/cmd"
	"k8s.io/component-base/logs"
)

func main() {
	command := cmd.NewAppCommand()
	logs.InitLogs()
	defer logs.FlushLogs()

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}
