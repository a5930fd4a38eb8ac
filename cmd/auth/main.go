package main

import "github.com/aussiebroadwan/tabauth/cmd/auth/cmd"

func main() {
	cmd.Execute()
}
