package main

import "github.com/MeKo-Tech/roadsign/cmd/roadsign/cmd"

func main() {
	cmd.Execute()
}
