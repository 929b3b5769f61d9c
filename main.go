package main

import "github.com/Misgexx/mintguard/cmd"

func main() {
	cmd.Execute()
}
