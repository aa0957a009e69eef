// Package progress translates low-level download and inference signals into
// the percentages and sentences shown to the user.
//
// The numeric bands are part of the user-facing contract:
//
//	 0–12   runtime and model initialisation
//	15–90   artifact downloads
//	92–95   audio preprocessing
//	95–97   model ready, audio validated
//	97–99   inference (time-based heuristic)
//	98.5, 99, 100  result finalisation
package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Progress band limits.
const (
	DownloadStart = 15.0
	DownloadSpan  = 75.0
	DownloadCap   = 90.0

	InferenceStart = 97.0
	InferenceCap   = 99.0

	ResultsReceived = 98.5
	Finalizing      = 99.0
	Complete        = 100.0
)

// HeuristicInterval is how often the inference estimate is refreshed.
const HeuristicInterval = 2 * time.Second

type categoryRule struct {
	match    func(name string) bool
	category string
}

func contains(sub string) func(string) bool {
	return func(name string) bool { return strings.Contains(name, sub) }
}

// categoryRules are evaluated in order; the first match wins. The specific
// *_config.json names precede the generic config.json rule.
var categoryRules = []categoryRule{
	{contains("preprocessor_config.json"), "Audio preprocessor"},
	{contains("generation_config.json"), "Generation settings"},
	{contains("config.json"), "Model configuration"},
	{contains("tokenizer.json"), "Text tokenizer"},
	{func(n string) bool {
		return strings.Contains(n, ".bin") || strings.Contains(n, ".safetensors") || strings.Contains(n, ".gguf")
	}, "Neural network weights"},
	{contains(".onnx"), "ONNX model file"},
}

// Classify maps an artifact file name to a human-readable category. Names
// matching no rule are returned unchanged.
func Classify(name string) string {
	for _, r := range categoryRules {
		if r.match(name) {
			return r.category
		}
	}
	return name
}

var byteUnits = [...]string{"Bytes", "KB", "MB", "GB"}

// FormatBytes renders n with 1024-based units and at most two decimals,
// dropping trailing zeros: 0 → "0 Bytes", 1536 → "1.5 KB", 1048576 → "1 MB".
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 Bytes"
	}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(byteUnits)-1 {
		v /= 1024
		i++
	}
	scaled := math.Round(v*100) / 100
	return strconv.FormatFloat(scaled, 'f', -1, 64) + " " + byteUnits[i]
}

// Percent returns round(loaded*100/total), clamped to [0, 100]. An unknown
// total yields 0.
func Percent(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(loaded) * 100 / float64(total)))
	return max(0, min(p, 100))
}

// FileMessage describes the download state of one artifact.
func FileMessage(name string, loaded, total int64) string {
	cat := Classify(name)
	pct := Percent(loaded, total)
	if pct >= 100 {
		return "Downloaded " + cat
	}
	return fmt.Sprintf("Downloading %s: %d%% (%s / %s)", cat, pct, FormatBytes(loaded), FormatBytes(total))
}

// Overall maps a file percentage to the download band:
// min(90, 15 + round(pct*75/100)).
func Overall(filePct float64) float64 {
	return math.Min(DownloadCap, DownloadStart+math.Round(filePct*DownloadSpan/100))
}

// InferenceEstimate returns the heuristic inference progress after elapsed
// time for audio of the given duration: min(99, 97 + elapsedMs/(seconds*100)).
// It never reaches 100.
func InferenceEstimate(elapsed time.Duration, audioSeconds float64) float64 {
	if audioSeconds <= 0 {
		return InferenceStart
	}
	ms := float64(elapsed.Milliseconds())
	return math.Min(InferenceCap, InferenceStart+ms/(audioSeconds*100))
}

// InferenceMessage is the sentence shown with each heuristic tick.
func InferenceMessage(audioSeconds float64) string {
	minutes := int(math.Ceil(audioSeconds / 60))
	return fmt.Sprintf("Processing %dmin audio - Whisper AI analyzing speech patterns...", minutes)
}
