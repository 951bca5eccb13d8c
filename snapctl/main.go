package main

import "healthsnap/snapctl/cmd"

func main() {
	cmd.Execute()
}
