package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"liquidityEngine/internal/pricing"
	"liquidityEngine/internal/units"
)

func runQuote(cmd *cobra.Command, _ []string) error {
	decimals, _ := cmd.Flags().GetUint8("decimals")

	values := make(map[string]string, 3)
	for _, name := range []string{"amount", "in-reserve", "out-reserve"} {
		value, _ := cmd.Flags().GetString(name)
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
		values[name] = value
	}

	amount, err := units.Parse(values["amount"], decimals)
	if err != nil {
		return err
	}
	inReserve, err := units.Parse(values["in-reserve"], decimals)
	if err != nil {
		return err
	}
	outReserve, err := units.Parse(values["out-reserve"], decimals)
	if err != nil {
		return err
	}

	out, err := pricing.QuoteWithFee(amount, inReserve, outReserve)
	if err != nil {
		return fmt.Errorf("quote: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), units.Format(out, decimals))
	return nil
}
