package main

import (
	"os"

	"github.com/bondedhq/link-server/linkservice"
)

func main() {
	if err := linkservice.Run(); err != nil {
		os.Exit(1)
	}
}
