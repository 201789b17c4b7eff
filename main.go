package main

import "hallbook/cmd"

func main() {
	cmd.Execute()
}
