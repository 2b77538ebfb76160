package main

import "github.com/frahmantamala/vehicle-rental/cmd"

func main() {
	cmd.Execute()
}
