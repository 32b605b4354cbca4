package main

import "github.com/veridata/gopromote/cmd/gopromote/cmd"

func main() {
	cmd.Execute()
}
