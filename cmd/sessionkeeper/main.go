package main

import "github.com/jrsteele09/go-session-keeper/cmd/sessionkeeper/cmd"

func main() {
	cmd.Execute()
}
