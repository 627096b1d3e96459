//go:build !linux

package main

import (
	"errors"

	"memtap/target"
)

var errNoLocalTargets = errors.New("direct target access requires linux; use --socket against a linux host")

func newHost() (target.Host, error) {
	return nil, errNoLocalTargets
}

func findByName(string) (target.PID, error) {
	return 0, errNoLocalTargets
}

func listProcesses(string) ([]procInfo, error) {
	return nil, errNoLocalTargets
}
