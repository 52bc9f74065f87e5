package app_config

import (
	"io/ioutil"
	"log"

	"gopkg.in/yaml.v2"
)

// This is the app config for daemon startup. Job policy stays per request;
// only process-level settings live here.
type FlockdAppConfig struct {
	// Address the http api binds to.
	LISTEN_ADDR string `yaml:"LISTEN_ADDR"`
	// Submitted jobs wait in a queue of this depth. Submissions beyond it
	// are rejected rather than blocked.
	JOB_QUEUE_DEPTH int `yaml:"JOB_QUEUE_DEPTH"`
	// Buffer size of the progress event bus. Publishing never blocks the
	// running job while the buffer has room.
	EVENT_BUS_BUFFER int64 `yaml:"EVENT_BUS_BUFFER"`
}

func ParseFlockdAppConfig(path string) FlockdAppConfig {
	c := FlockdAppConfig{}
	yamlFile, err := ioutil.ReadFile(path)
	if err != nil {
		log.Fatal("yamlFile. get err: ", err.Error())
	}
	err = yaml.Unmarshal(yamlFile, &c)
	if err != nil {
		log.Fatal("Unmarshal: ", err)
	}
	return c
}
