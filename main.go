package main

import "github.com/chrisuehlinger/hostdom/cmd"

func main() {
	cmd.Execute()
}
