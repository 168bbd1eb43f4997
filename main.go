package main

import "github.com/gsPatrick/nutri-lp/cmd"

func main() {
	cmd.Execute()
}
