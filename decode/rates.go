package decode

// Valid rtl-sdr sample rates fall in one of two bands:
// http://cgit.osmocom.org/rtl-sdr/tree/src/librtlsdr.c#n1069
const (
	LowerMin = 225e3
	LowerMax = 300e3
	UpperMin = 900e3
	UpperMax = 3.2e6
)

// ValidSampleRate reports whether the dongle can be tuned to rate.
func ValidSampleRate(rate int) bool {
	r := float64(rate)
	return (LowerMin < r && r <= LowerMax) || (UpperMin < r && r <= UpperMax)
}

// Rate is a front end sample rate that decimates to a loop rate.
type Rate struct {
	SampleRate int
	Decimation int
}

// SampleRates lists every valid dongle sample rate that is an integer
// multiple of loopRate, lowest first.
func SampleRates(loopRate int) (rates []Rate) {
	if loopRate <= 0 {
		return nil
	}

	for decimation := 1; decimation*loopRate <= UpperMax; decimation++ {
		sampleRate := decimation * loopRate
		if ValidSampleRate(sampleRate) {
			rates = append(rates, Rate{sampleRate, decimation})
		}
	}

	return rates
}
