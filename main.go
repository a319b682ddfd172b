package main

import "liquefier/cmd"

func main() {
	cmd.Execute()
}
