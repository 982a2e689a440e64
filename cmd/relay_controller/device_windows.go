//go:build windows

package main

import "memrelay/process_windows"

func init() {
	devices["local"] = process_windows.Open
}
