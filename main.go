package main

import "github.com/ngld/star/cmd"

func main() {
	cmd.Execute()
}
