package main

import "github.com/toolboxpm/toolbox-vault/cmd"

func main() {
	cmd.Execute()
}
