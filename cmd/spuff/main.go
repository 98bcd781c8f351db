package main

import (
	"github.com/rs/zerolog/log"

	"github.com/spuff/spuff/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		log.Fatal().Err(err).Msg("spuff failed")
	}
}
