package main

import "mspro-labs/coffee-finder/cmd"

func main() {
	cmd.Execute()
}
