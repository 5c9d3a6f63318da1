package main

import "github.com/astralkiln/magnetar/cmd"

func main() {
	cmd.Execute()
}
