package main

import "github.com/digicoders/feeledger/cmd"

func main() {
	cmd.Execute()
}
