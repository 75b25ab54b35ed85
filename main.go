package main

import (
	"log"

	"github.com/zkLinkProtocol/nova-point-backend/cmd/novapoint/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		log.Fatal(err)
	}
}
