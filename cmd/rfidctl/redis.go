package main

import (
	"github.com/mercuryrf/reader/internal/telemetry"
)

func newRedisPublisher(addr, password string, db int) (*telemetry.Publisher, error) {
	return telemetry.New(addr, password, db)
}
