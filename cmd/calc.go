package cmd

import (
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tsc-sim/tsc-sim/sim"
)

var calcCmd = &cobra.Command{
	Use:   "calc",
	Short: "Calculate a single TSC-related value",
}

// parseCounterValue parses a counter or frequency argument, accepting
// decimal or prefixed hex/octal/binary forms.
func parseCounterValue(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid counter value %q", s)
	}
	return v, nil
}

// --- tsc-sim calc freq ---

var (
	freqHostHz   uint64
	freqGuestHz  uint64
	freqIntSize  uint8
	freqFracSize uint8
)

var calcFreqCmd = &cobra.Command{
	Use:   "freq",
	Short: "Compute the fixed point frequency multiplier for a guest/host pair",
	Run: func(cmd *cobra.Command, args []string) {
		layout := sim.Layout{IntegerBits: freqIntSize, FractionalBits: freqFracSize}
		ratio, err := sim.ComputeRatio(freqGuestHz, freqHostHz, layout)
		if err != nil {
			logrus.Fatalf("could not compute frequency multiplier: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%#x\n", ratio.RawValue)
		logrus.Infof("multiplier %#x is %.9f in %d.%d fixed point",
			ratio.RawValue, ratio.Float64(), layout.IntegerBits, layout.FractionalBits)
	},
}

// --- tsc-sim calc guest-tsc ---

var (
	guestTscInitialHost  uint64
	guestTscInitialGuest uint64
	guestTscHostHz       uint64
	guestTscGuestHz      uint64
	guestTscIntSize      uint8
	guestTscFracSize     uint8
	guestTscScaler       string
)

var calcGuestTscCmd = &cobra.Command{
	Use:   "guest-tsc <host-tsc>",
	Short: "Compute the guest TSC for a host counter reading",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hostTSC, err := parseCounterValue(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		sc, err := sim.NewScaler(guestTscScaler)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		layout := sim.Layout{IntegerBits: guestTscIntSize, FractionalBits: guestTscFracSize}
		guest, err := sim.GuestTSC(guestTscInitialHost, hostTSC, guestTscHostHz,
			guestTscInitialGuest, guestTscGuestHz, layout, sc)
		if err != nil {
			logrus.Fatalf("could not calculate guest tsc: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", guest)
	},
}

// --- tsc-sim calc offset ---

var (
	offsetInitialGuest uint64
	offsetGuestHz      uint64
	offsetHostHz       uint64
	offsetIntSize      uint8
	offsetFracSize     uint8
	offsetScaler       string
)

var calcOffsetCmd = &cobra.Command{
	Use:   "offset <initial-host-tsc>",
	Short: "Compute the signed TSC offset a hypervisor would program",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initialHostTSC, err := parseCounterValue(args[0])
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		sc, err := sim.NewScaler(offsetScaler)
		if err != nil {
			logrus.Fatalf("%v", err)
		}

		layout := sim.Layout{IntegerBits: offsetIntSize, FractionalBits: offsetFracSize}
		off, err := sim.TSCOffset(initialHostTSC, offsetInitialGuest,
			offsetGuestHz, offsetHostHz, layout, sc)
		if err != nil {
			logrus.Fatalf("could not calculate tsc offset: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", off)
	},
}

// --- tsc-sim calc hrtime ---

var (
	hrtimeTSC    uint64
	hrtimeFreqHz uint64
)

var calcHrtimeCmd = &cobra.Command{
	Use:   "hrtime",
	Short: "Convert a TSC reading to nanoseconds",
	Run: func(cmd *cobra.Command, args []string) {
		ns, err := sim.Hrtime(hrtimeTSC, hrtimeFreqHz)
		if err != nil {
			logrus.Fatalf("could not calculate hrtime: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", ns)
	},
}

// --- tsc-sim calc tsc ---

var (
	tscHrtimeNs uint64
	tscFreqHz   uint64
)

var calcTscCmd = &cobra.Command{
	Use:   "tsc",
	Short: "Convert an hrtime in nanoseconds to a TSC reading",
	Run: func(cmd *cobra.Command, args []string) {
		tsc, err := sim.TSC(tscHrtimeNs, tscFreqHz)
		if err != nil {
			logrus.Fatalf("could not calculate tsc: %v", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d\n", tsc)
	},
}

// init sets up the calc subcommand tree. Counter and frequency flags
// take decimal or prefixed hex values.
func init() {
	calcFreqCmd.Flags().Uint64VarP(&freqHostHz, "host-hz", "f", 0, "Host frequency (Hz)")
	calcFreqCmd.Flags().Uint64VarP(&freqGuestHz, "guest-hz", "g", 0, "Guest frequency (Hz)")
	calcFreqCmd.Flags().Uint8Var(&freqIntSize, "int-size", 8, "Integer bits in the multiplier")
	calcFreqCmd.Flags().Uint8Var(&freqFracSize, "frac-size", 32, "Fraction bits in the multiplier")
	_ = calcFreqCmd.MarkFlagRequired("host-hz")
	_ = calcFreqCmd.MarkFlagRequired("guest-hz")

	calcGuestTscCmd.Flags().Uint64VarP(&guestTscInitialHost, "initial-host-tsc", "i", 0, "Initial host TSC value (at boot or time of migration)")
	calcGuestTscCmd.Flags().Uint64VarP(&guestTscInitialGuest, "initial-guest-tsc", "t", 0, "Initial guest TSC value")
	calcGuestTscCmd.Flags().Uint64VarP(&guestTscHostHz, "host-hz", "f", 1000000000, "Host frequency (Hz)")
	calcGuestTscCmd.Flags().Uint64VarP(&guestTscGuestHz, "guest-hz", "g", 1000000000, "Guest frequency (Hz)")
	calcGuestTscCmd.Flags().Uint8Var(&guestTscIntSize, "int-size", 8, "Integer bits in the multiplier")
	calcGuestTscCmd.Flags().Uint8Var(&guestTscFracSize, "frac-size", 32, "Fraction bits in the multiplier")
	calcGuestTscCmd.Flags().StringVarP(&guestTscScaler, "scaler", "m", sim.ScalerNative, "Scaling implementation (native, bitwise, both)")
	_ = calcGuestTscCmd.MarkFlagRequired("initial-host-tsc")

	calcOffsetCmd.Flags().Uint64VarP(&offsetInitialGuest, "initial-guest-tsc", "t", 0, "Initial guest TSC value")
	calcOffsetCmd.Flags().Uint64VarP(&offsetGuestHz, "guest-hz", "g", 1000000000, "Guest frequency (Hz)")
	calcOffsetCmd.Flags().Uint64VarP(&offsetHostHz, "host-hz", "f", 1000000000, "Host frequency (Hz)")
	calcOffsetCmd.Flags().Uint8Var(&offsetIntSize, "int-size", 8, "Integer bits in the multiplier")
	calcOffsetCmd.Flags().Uint8Var(&offsetFracSize, "frac-size", 32, "Fraction bits in the multiplier")
	calcOffsetCmd.Flags().StringVarP(&offsetScaler, "scaler", "m", sim.ScalerNative, "Scaling implementation (native, bitwise, both)")

	calcHrtimeCmd.Flags().Uint64VarP(&hrtimeTSC, "tsc", "t", 0, "TSC value")
	calcHrtimeCmd.Flags().Uint64VarP(&hrtimeFreqHz, "frequency", "f", 1000000000, "Frequency (Hz)")
	_ = calcHrtimeCmd.MarkFlagRequired("tsc")

	calcTscCmd.Flags().Uint64VarP(&tscHrtimeNs, "hrtime", "t", 0, "hrtime (nanoseconds)")
	calcTscCmd.Flags().Uint64VarP(&tscFreqHz, "frequency", "f", 1000000000, "Frequency (Hz)")
	_ = calcTscCmd.MarkFlagRequired("hrtime")

	calcCmd.AddCommand(calcFreqCmd)
	calcCmd.AddCommand(calcGuestTscCmd)
	calcCmd.AddCommand(calcOffsetCmd)
	calcCmd.AddCommand(calcHrtimeCmd)
	calcCmd.AddCommand(calcTscCmd)
}
