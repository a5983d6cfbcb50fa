package main

import "github.com/oshokin/expo-updates-server/cmd/updates-server/cmd"

func main() {
	cmd.Execute()
}
