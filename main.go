package main

import (
	"github.com/ValentinKolb/rowan/cmd"
)

func main() {
	cmd.Execute()
}
