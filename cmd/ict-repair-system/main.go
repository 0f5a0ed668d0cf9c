package main

import (
	"log"

	"github.com/ceejayvjose/ict-repair-system/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
