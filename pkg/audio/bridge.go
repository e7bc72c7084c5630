package audio

import (
	"encoding/base64"
	"math"
)

// EncodeFrame converts a frame of float32 samples in [-1, 1) into 16-bit
// signed little-endian PCM and base64-encodes it for the wire. Scaling uses
// a factor of 32768; a sample of exactly 1.0 maps to -32768 by int16
// wraparound, matching the upstream protocol's reference encoder.
func EncodeFrame(samples []float32) string {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32768)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeFrame converts a base64 payload of 16-bit signed little-endian PCM
// into float32 samples normalized by 32768. A trailing odd byte is ignored.
func DecodeFrame(data string) ([]float32, error) {
	pcm, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	return DecodePCM(pcm), nil
}

// DecodePCM converts raw 16-bit signed little-endian PCM into float32
// samples normalized by 32768.
func DecodePCM(pcm []byte) []float32 {
	samples := make([]float32, len(pcm)/2)
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		samples[i/2] = float32(sample) / 32768.0
	}
	return samples
}

// EncodePCM converts float32 samples into raw 16-bit signed little-endian
// PCM, using the same wraparound scaling as EncodeFrame.
func EncodePCM(samples []float32) []byte {
	pcm := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := int16(s * 32768)
		pcm[i*2] = byte(v)
		pcm[i*2+1] = byte(v >> 8)
	}
	return pcm
}

// RMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}

// PeakAmplitude returns the maximum absolute amplitude in the PCM data.
// Returns a value between 0.0 and 1.0.
func PeakAmplitude(pcm []byte) float64 {
	if len(pcm) < 2 {
		return 0
	}

	var maxAbs float64
	for i := 0; i < len(pcm)-1; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		// Use float64 to avoid overflow when negating -32768
		abs := math.Abs(float64(sample))
		if abs > maxAbs {
			maxAbs = abs
		}
	}

	return maxAbs / 32768.0
}
