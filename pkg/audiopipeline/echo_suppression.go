package audiopipeline

import (
	"bytes"
	"math"
	"sync"
	"time"
)

// EchoSuppressor detects and filters the bot's own speaker output being
// picked back up by the caller's microphone, using correlation against a
// rolling buffer of recently-played audio plus an envelope-correlation
// fallback for phase-shifted sibilants.
type EchoSuppressor struct {
	mu                     sync.Mutex
	playedAudioBuf         *bytes.Buffer
	maxBufSize             int
	echoThreshold          float64
	echoSilenceMS          int
	lastPlaybackTime       time.Time
	enabled                bool
	recentPlaybackWindowMS int
}

// NewEchoSuppressor returns an EchoSuppressor whose 176400-byte
// played-audio buffer holds 2s of 44.1kHz mono linear16. Input at other
// rates (e.g. 8kHz decoded telephony audio) is compared sample-for-sample
// without resampling, so the buffer then spans a longer stretch of time.
func NewEchoSuppressor() *EchoSuppressor {
	return &EchoSuppressor{
		playedAudioBuf:         new(bytes.Buffer),
		maxBufSize:             176400,
		echoThreshold:          0.55,
		echoSilenceMS:          1200,
		recentPlaybackWindowMS: 1200,
		enabled:                true,
	}
}

// RecordPlayedAudio records audio that was just sent to the caller.
func (es *EchoSuppressor) RecordPlayedAudio(chunk []byte) {
	if !es.enabled || len(chunk) == 0 {
		return
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	es.playedAudioBuf.Write(chunk)
	es.lastPlaybackTime = time.Now()

	if es.playedAudioBuf.Len() > es.maxBufSize {
		data := es.playedAudioBuf.Bytes()
		trim := data[len(data)-es.maxBufSize:]
		es.playedAudioBuf.Reset()
		es.playedAudioBuf.Write(trim)
	}
}

// IsEcho reports whether inputChunk correlates strongly enough with
// recently-played audio to be the bot hearing itself.
func (es *EchoSuppressor) IsEcho(inputChunk []byte) bool {
	if !es.enabled || len(inputChunk) == 0 {
		return false
	}
	es.mu.Lock()
	defer es.mu.Unlock()

	if time.Since(es.lastPlaybackTime) > time.Duration(es.echoSilenceMS)*time.Millisecond {
		return false
	}
	playedData := es.playedAudioBuf.Bytes()
	if len(playedData) == 0 {
		return false
	}

	if es.calculateCorrelation(inputChunk, playedData) > es.echoThreshold {
		return true
	}
	envCorr := maxEnvelopeCorrelation(bytesToSamples(inputChunk), bytesToSamples(playedData), 8)
	return envCorr > es.echoThreshold+0.05
}

func (es *EchoSuppressor) calculateCorrelation(input, reference []byte) float64 {
	if len(input) == 0 || len(reference) == 0 {
		return 0
	}
	inputSamples := bytesToSamples(input)
	refSamples := bytesToSamples(reference)
	if len(inputSamples) == 0 || len(refSamples) == 0 {
		return 0
	}

	compareLen := len(inputSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}
	refCompare := refSamples[len(refSamples)-compareLen:]

	inputEnergy := calculateEnergy(inputSamples)
	refCompareEnergy := calculateEnergy(refCompare)
	if inputEnergy == 0 || refCompareEnergy == 0 {
		return 0
	}

	correlation := 0.0
	for i := 0; i < len(inputSamples) && i < len(refCompare); i++ {
		correlation += inputSamples[i] * refCompare[i]
	}

	normFactor := math.Sqrt(inputEnergy * refCompareEnergy)
	if normFactor == 0 {
		return 0
	}
	normalizedCorr := correlation / normFactor
	if normalizedCorr < 0 {
		normalizedCorr = 0
	} else if normalizedCorr > 1 {
		normalizedCorr = 1
	}
	return normalizedCorr
}

func bytesToSamples(data []byte) []float64 {
	samples := make([]float64, 0, len(data)/2)
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | (int16(data[i+1]) << 8)
		samples = append(samples, float64(sample)/32768.0)
	}
	return samples
}

func calculateEnergy(samples []float64) float64 {
	energy := 0.0
	for _, s := range samples {
		energy += s * s
	}
	return energy
}

// ClearEchoBuffer clears the played-audio buffer (call on interrupt).
func (es *EchoSuppressor) ClearEchoBuffer() {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.playedAudioBuf.Reset()
}

// RemoveEchoRealtime mutes input if it correlates strongly with recently
// played audio, otherwise returns it unchanged. Lightweight time-domain
// cancellation, not a full AEC.
func (es *EchoSuppressor) RemoveEchoRealtime(input []byte) []byte {
	out := make([]byte, len(input))
	copy(out, input)
	if !es.enabled || len(input) == 0 {
		return out
	}

	es.mu.Lock()
	if time.Since(es.lastPlaybackTime) > time.Duration(es.echoSilenceMS)*time.Millisecond {
		es.mu.Unlock()
		return out
	}
	ref := make([]byte, es.playedAudioBuf.Len())
	copy(ref, es.playedAudioBuf.Bytes())
	threshold := es.echoThreshold
	es.mu.Unlock()

	if len(ref) == 0 {
		return out
	}

	inSamples := bytesToSamples(input)
	refSamples := bytesToSamples(ref)
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return out
	}

	compareLen := len(inSamples)
	if compareLen > len(refSamples) {
		compareLen = len(refSamples)
	}
	inSeg := inSamples[:compareLen]
	inEnergy := calculateEnergy(inSeg)
	if inEnergy == 0 {
		return out
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 8 {
		stride = 8
	}
	searchRange := len(refSamples) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		seg := refSamples[pos : pos+compareLen]
		segEnergy := calculateEnergy(seg)
		if segEnergy == 0 {
			continue
		}
		dot := 0.0
		for i := 0; i < compareLen; i++ {
			dot += inSeg[i] * seg[i]
		}
		corr := dot / math.Sqrt(inEnergy*segEnergy)
		if corr > maxCorr {
			maxCorr = corr
			if maxCorr >= 0.999 {
				break
			}
		}
	}

	if maxCorr < threshold {
		envCorr := maxEnvelopeCorrelation(inSeg, refSamples, 8)
		if envCorr < threshold+0.05 {
			return out
		}
	}

	muted := make([]byte, len(input))
	if len(muted) > compareLen*2 {
		copy(muted[compareLen*2:], input[compareLen*2:])
	}
	return muted
}

func maxEnvelopeCorrelation(inSamples, refSamples []float64, decimation int) float64 {
	if len(inSamples) == 0 || len(refSamples) == 0 {
		return 0
	}
	inEnv := make([]float64, len(inSamples)/decimation)
	for i := range inEnv {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(inSamples[i*decimation+j])
		}
		inEnv[i] = sum
	}
	refEnv := make([]float64, len(refSamples)/decimation)
	for i := range refEnv {
		sum := 0.0
		for j := 0; j < decimation; j++ {
			sum += math.Abs(refSamples[i*decimation+j])
		}
		refEnv[i] = sum
	}

	compareLen := len(inEnv)
	if compareLen > len(refEnv) {
		compareLen = len(refEnv)
	}
	if compareLen == 0 {
		return 0
	}

	inMean := 0.0
	for i := 0; i < compareLen; i++ {
		inMean += inEnv[i]
	}
	inMean /= float64(compareLen)

	inVar := 0.0
	for i := 0; i < compareLen; i++ {
		inEnv[i] -= inMean
		inVar += inEnv[i] * inEnv[i]
	}
	if inVar <= 0 {
		return 0
	}

	maxCorr := 0.0
	stride := compareLen / 4
	if stride < 2 {
		stride = 2
	}
	searchRange := len(refEnv) - compareLen + 1
	for pos := 0; pos < searchRange; pos += stride {
		refMean := 0.0
		for i := 0; i < compareLen; i++ {
			refMean += refEnv[pos+i]
		}
		refMean /= float64(compareLen)

		dot, refVar := 0.0, 0.0
		for i := 0; i < compareLen; i++ {
			r := refEnv[pos+i] - refMean
			dot += inEnv[i] * r
			refVar += r * r
		}
		if refVar > 0 {
			if corr := dot / math.Sqrt(inVar*refVar); corr > maxCorr {
				maxCorr = corr
			}
		}
	}
	return maxCorr
}

// SetThreshold adjusts echo-detection sensitivity in [0, 1].
func (es *EchoSuppressor) SetThreshold(threshold float64) {
	es.mu.Lock()
	defer es.mu.Unlock()
	if threshold >= 0 && threshold <= 1 {
		es.echoThreshold = threshold
	}
}

// SetEnabled toggles echo suppression.
func (es *EchoSuppressor) SetEnabled(enabled bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.enabled = enabled
}
