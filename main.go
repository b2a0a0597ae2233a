package main

import "github.com/nextlevelbuilder/holdfast/cmd"

func main() {
	cmd.Execute()
}
