package main

import "github.com/joshuadavidthomas/dashtext/cmd/dashtext-packager/cmd"

func main() {
	cmd.Execute()
}
