//go:build linux

package main

import "memrelay/process_linux"

func init() {
	devices["local"] = process_linux.Open
}
