package main

import (
	"encoding/json"
	"log"
	"os"
)

// Config holds trackclient's command-line/JSON-overlay configuration.
type Config struct {
	Remote            string `json:"remote"`
	Schema            string `json:"schema"`
	Produces          bool   `json:"produces"`
	Consumes          bool   `json:"consumes"`
	IntervalMS        int    `json:"interval"`
	ConnectIntervalMS int    `json:"connectinterval"`
	MaxMsgLen         int    `json:"maxmsglen"`
	Log               string `json:"log"`
	CounterLog        string `json:"counterlog"`
	CounterPer        int    `json:"counterperiod"`
	Quiet             bool   `json:"quiet"`
}

func parseJSONConfig(config *Config, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(config)
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(-1)
	}
}
