// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/bms"
)

var decodeAs string

var decodeCmd = &cobra.Command{
	Use:   "decode <hex>",
	Short: "Decode a captured response frame",
	Long: `Parse a response frame given as hex and show its framing fields,
checksum and, with --as, the decoded record.

The hex may contain spaces or a 0x prefix, as printed in error messages:

  batteread decode --as voltages "0x01034c0d7e0d7c..."`,
	Args:              cobra.MinimumNArgs(1),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE:              runDecode,
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().StringVar(&decodeAs, "as", "", "Decode the payload as: soc or voltages")
}

// parseHexArgs joins the arguments and strips separators and 0x prefixes
func parseHexArgs(args []string) ([]byte, error) {
	s := strings.Join(args, "")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	buf, err := parseHexArgs(args)
	if err != nil {
		return err
	}

	fmt.Print(bms.FormatFrame(buf))

	if decodeAs == "" {
		return nil
	}
	req, ok := bms.RequestByName(decodeAs)
	if !ok {
		return fmt.Errorf("unknown record %q (use soc or voltages)", decodeAs)
	}

	out := bms.Parse(buf)
	if !out.Complete() {
		return fmt.Errorf("frame is %s, nothing to decode", out)
	}
	text, err := bms.FormatRecord(req, out.Payload)
	if err != nil {
		return err
	}
	fmt.Print(text)
	return nil
}
