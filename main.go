package main

import "github.com/syepes/hubitat-exporter/cmd"

func main() {
	cmd.Execute()
}
