package vad

// Resample16k performs simple linear resampling to 16 kHz, so capture can
// run at whatever rate the device prefers while VAD always sees 16 kHz
// frames.
func Resample16k(samples []int16, fromRate int) []int16 {
	if fromRate == 16000 || len(samples) == 0 {
		return samples
	}
	outLen := len(samples) * 16000 / fromRate
	if outLen == 0 {
		return nil
	}
	out := make([]int16, outLen)
	for i := range out {
		srcPos := float64(i) * float64(fromRate) / 16000.0
		idx := int(srcPos)
		frac := srcPos - float64(idx)
		if idx+1 < len(samples) {
			out[i] = int16(float64(samples[idx])*(1-frac) + float64(samples[idx+1])*frac)
		} else {
			out[i] = samples[len(samples)-1]
		}
	}
	return out
}
