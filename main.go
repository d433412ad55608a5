package main

import "github.com/lepinkainen/bookfetch/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
