// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Batteread - BMS telemetry reader
//
// A CLI tool for reading state of charge and cell voltages from a
// battery management system over its serial-over-BLE link.

package main

import (
	"fmt"
	"os"

	"github.com/Thermoquad/batteread/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cmd.ExitCode(err))
	}
}
