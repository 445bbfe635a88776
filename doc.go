/*
RTLAMSYNC is an rtl-sdr receiver for AM broadcast that tracks the carrier with
a fixed point phase locked loop and demodulates against the regenerated
carrier. The loop is the same integer arithmetic the firmware runs, so a trace
from this receiver can be compared against a capture from the hardware.

Samples are read from an rtl_tcp server, or from a file of interleaved uint8
IQ samples given by -samplefile, decimated to the loop rate and run through the
loop one block at a time.

Command-line Flags:

	-config=""

Loop configuration file in yaml. Keys are loop_bandwidth, sample_rate,
freq_min, freq_max, filter, frac_bits, iir_frac_bits and shape. Unknown keys are
rejected. The sample rate is always replaced by the loop rate derived from
-samplerate and -decimation. Loop flags given explicitly override the file.

	-filter="pi"

Loop filter. The pi filter is a second order loop with a clamped frequency
integrator. The iir3 filter is a third order loop that tracks frequency ramps
without a steady state error.

	-loopbandwidth=100

Loop bandwidth in Hz. Must be small against the loop rate.

	-pullin=3000

Pull-in range in ±Hz. The frequency estimate of either filter is clamped to
this range. After a fade the loop pulls in from a bound, which is only
dependable when the range is well inside a sixth of the loop rate.

	-decimation=16

Integer decimation factor from -samplerate to the loop rate. Defaults to
240kHz/16 = 15kHz.

	-blocksize=1024

Loop rate samples per block.

	-mode="sync"

Audio demodulator. sync takes the in-phase arm of the locked loop, am takes
the envelope.

	-audiofile="/dev/null"

Audio output, raw signed 16-bit little endian samples at the loop rate.

	-stride=0

Writes every nth loop step to the trace, 0 disables the trace.

	-format="plain"

Trace output format: plain, csv, json or xml. Plain text is formatted using:

	{Time:%s Offset:%d Carrier:(%d, %d) Err:%d (%+0.2f°) Baseband:(%d, %d)}

For json and xml output each line is an element, there is no root node.

	-tracefile="-"

Trace output file, - for stdout.

	-duration=0

Sets time to receive for, 0 for infinite.

	-quiet=false

Omits state information logged on startup.

	-version=false

Prints the build tag, date and commit and exits.

Any flag may also be given in the environment as RTLAMSYNC_<FLAG>, for example
RTLAMSYNC_LOOPBANDWIDTH=50. The command line takes precedence.

The loop constants for the firmware build are generated by cmd/amsyncgen from
the same configuration file.
*/
package main
