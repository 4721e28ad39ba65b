package main

import "github.com/joshuadavidthomas/dashtext/cmd/dashtext/cmd"

func main() {
	cmd.Execute()
}
