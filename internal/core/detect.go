package core

// detect.go scores file headers against the format catalog.
//
// For each signature:
//
//	score = 0.7 * (required present / required)
//	      + 0.2 * (optional present / optional)   // 0 when no optional columns
//	      + 0.1 * filename bonus                   // 1 if a keyword matches
//
// A signature is only a candidate when every required column is present.
// The highest candidate score at or above the signature's MinConfidence wins;
// ties keep the earlier catalog entry.

import (
	"math"
	"strings"
)

const (
	requiredWeight = 0.7
	optionalWeight = 0.2
	filenameWeight = 0.1
)

// Detect determines which known format content matches.
// filename is an optional hint and may be empty. Content that cannot be read
// as tabular data returns an error wrapping ErrMalformedContent.
func Detect(content, filename string) (DetectionResult, error) {
	t, err := parseTable(content)
	if err != nil {
		return DetectionResult{}, err
	}
	return detectHeaders(t.Index, filename), nil
}

// DetectAs scores content against a single requested format. The result is
// that format when it is a candidate clearing its threshold, otherwise
// FormatUnknown with the score it reached.
func DetectAs(content, filename string, format Format) (DetectionResult, error) {
	t, err := parseTable(content)
	if err != nil {
		return DetectionResult{}, err
	}

	sig, ok := SignatureFor(format)
	if !ok {
		return DetectionResult{Format: FormatUnknown}, nil
	}

	score, candidate := scoreSignature(sig, t.Index, strings.ToLower(filename))
	res := DetectionResult{
		Format:     FormatUnknown,
		Confidence: score,
		Scores:     map[Format]float64{format: score},
	}
	if candidate && score >= sig.MinConfidence {
		res.Format = format
	}
	return res, nil
}

func detectHeaders(idx HeaderIndex, filename string) DetectionResult {
	name := strings.ToLower(filename)

	res := DetectionResult{
		Format: FormatUnknown,
		Scores: make(map[Format]float64, len(catalog)),
	}
	best, bestSeen := -1.0, 0.0

	for _, sig := range catalog {
		score, candidate := scoreSignature(sig, idx, name)
		res.Scores[sig.Format] = score
		if score > bestSeen {
			bestSeen = score
		}
		if !candidate || score < sig.MinConfidence {
			continue
		}
		if score > best {
			best = score
			res.Format = sig.Format
			res.Confidence = score
		}
	}

	if res.Format == FormatUnknown {
		res.Confidence = bestSeen
	}
	return res
}

// scoreSignature returns the weighted score and whether all required columns are present.
func scoreSignature(sig FormatSignature, idx HeaderIndex, name string) (float64, bool) {
	reqRatio := presentRatio(sig.Required, idx)

	// An empty optional set contributes nothing rather than a full share.
	optRatio := 0.0
	if len(sig.Optional) > 0 {
		optRatio = presentRatio(sig.Optional, idx)
	}

	bonus := 0.0
	if matchesKeyword(name, sig.FilenameKeywords) {
		bonus = 1.0
	}

	score := requiredWeight*reqRatio + optionalWeight*optRatio + filenameWeight*bonus
	return roundScore(score), reqRatio == 1.0
}

func presentRatio(cols []string, idx HeaderIndex) float64 {
	if len(cols) == 0 {
		return 0
	}
	found := 0
	for _, c := range cols {
		if _, ok := idx[c]; ok {
			found++
		}
	}
	return float64(found) / float64(len(cols))
}

// matchesKeyword reports whether the lowercased filename contains any keyword.
func matchesKeyword(name string, keywords []string) bool {
	if name == "" {
		return false
	}
	for _, kw := range keywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// roundScore keeps four decimals so 0.7+0.1 compares equal to 0.8.
func roundScore(v float64) float64 {
	return math.Round(v*10000) / 10000
}
