package main

import (
	"github.com/baaaht/fifoipc/cmd"
)

func main() {
	cmd.Execute()
}
