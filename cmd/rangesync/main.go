package main

import (
	"github.com/onflow/flow-rangesync/cmd/rangesync/cmd"
)

func main() {
	cmd.Execute()
}
