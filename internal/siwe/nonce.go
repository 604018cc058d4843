package siwe

import (
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strings"
	"unicode"
)

const (
	MinNonceLength         = 8
	RecommendedNonceLength = 12
	GeneratedNonceLength   = 16

	// MinEntropyRatio is the lowest accepted distinct/length ratio.
	MinEntropyRatio = 0.3
	// MinNonceBits is the lowest accepted Shannon entropy of a whole nonce.
	MinNonceBits = 32.0
	// SequentialRunLimit is the shortest ascending or descending run that
	// marks a nonce as sequential.
	SequentialRunLimit = 8
	MinCharClasses     = 2

	nonceAlphabet    = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	maxNonceAttempts = 64
)

var ErrNonceGeneration = errors.New("siwe: could not generate a strong nonce")

var (
	alnumPattern       = regexp.MustCompile(`^[A-Za-z0-9]+$`)
	weakPrefixPattern  = regexp.MustCompile(`(?i)^(test|demo|example|sample|nonce|dev)`)
	digitsOnlyPattern  = regexp.MustCompile(`^[0-9]+$`)
	lettersOnlyPattern = regexp.MustCompile(`^[A-Za-z]+$`)
)

// IsAlphanumericNonce reports whether nonce has the minimum length and only
// ASCII letters and digits.
func IsAlphanumericNonce(nonce string) bool {
	return len(nonce) >= MinNonceLength && alnumPattern.MatchString(nonce)
}

// EntropyRatio is the number of distinct characters divided by the length.
func EntropyRatio(nonce string) float64 {
	if nonce == "" {
		return 0
	}
	seen := make(map[rune]struct{})
	n := 0
	for _, r := range nonce {
		seen[r] = struct{}{}
		n++
	}
	return float64(len(seen)) / float64(n)
}

// ShannonBits estimates the total entropy of nonce from its own character
// frequencies.
func ShannonBits(nonce string) float64 {
	counts := make(map[rune]int)
	n := 0
	for _, r := range nonce {
		counts[r]++
		n++
	}
	if n == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(n)
		h -= p * math.Log2(p)
	}
	return h * float64(n)
}

// SequentialRun returns the length of the longest run of characters that
// step by exactly +1 or -1 within one class (digits, lower, upper).
func SequentialRun(nonce string) int {
	if nonce == "" {
		return 0
	}
	best, run, dir := 1, 1, 0
	prev := rune(nonce[0])
	for _, r := range nonce[1:] {
		step := 0
		if charClass(r) == charClass(prev) {
			switch r - prev {
			case 1:
				step = 1
			case -1:
				step = -1
			}
		}
		switch {
		case step != 0 && (step == dir || run == 1):
			run++
			dir = step
		case step != 0:
			run, dir = 2, step
		default:
			run, dir = 1, 0
		}
		if run > best {
			best = run
		}
		prev = r
	}
	return best
}

// IsSequential reports whether nonce contains a run of SequentialRunLimit.
func IsSequential(nonce string) bool {
	return SequentialRun(nonce) >= SequentialRunLimit
}

type class int

const (
	classOther class = iota
	classDigit
	classLower
	classUpper
)

func charClass(r rune) class {
	switch {
	case r >= '0' && r <= '9':
		return classDigit
	case r >= 'a' && r <= 'z':
		return classLower
	case r >= 'A' && r <= 'Z':
		return classUpper
	}
	return classOther
}

// CharClasses counts the distinct classes among lower, upper, digit, symbol.
func CharClasses(nonce string) int {
	var lower, upper, digit, symbol bool
	for _, r := range nonce {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		default:
			symbol = true
		}
	}
	n := 0
	for _, b := range []bool{lower, upper, digit, symbol} {
		if b {
			n++
		}
	}
	return n
}

// WeakPatterns names every denylisted pattern nonce matches.
func WeakPatterns(nonce string) []string {
	var out []string
	if m := weakPrefixPattern.FindString(nonce); m != "" {
		out = append(out, fmt.Sprintf("%s prefix", strings.ToLower(m)))
	}
	if repeatedUnit(nonce) || longestRepeat(nonce) >= 4 {
		out = append(out, "repeated characters")
	}
	if digitsOnlyPattern.MatchString(nonce) {
		out = append(out, "digits only")
	}
	if lettersOnlyPattern.MatchString(nonce) {
		out = append(out, "letters only")
	}
	return out
}

// repeatedUnit reports whether s is a repetition of a unit of 1 to 3 chars.
func repeatedUnit(s string) bool {
	for size := 1; size <= 3; size++ {
		if len(s) < size*2 || len(s)%size != 0 {
			continue
		}
		if strings.Repeat(s[:size], len(s)/size) == s {
			return true
		}
	}
	return false
}

func longestRepeat(s string) int {
	best, run := 0, 0
	var prev rune = -1
	for _, r := range s {
		if r == prev {
			run++
		} else {
			run = 1
		}
		if run > best {
			best = run
		}
		prev = r
	}
	return best
}

// IsStrongNonce reports whether nonce passes every nonce rule the validators
// apply, so a remediated nonce never triggers another finding.
func IsStrongNonce(nonce string) bool {
	return len(nonce) >= RecommendedNonceLength &&
		alnumPattern.MatchString(nonce) &&
		EntropyRatio(nonce) >= MinEntropyRatio &&
		ShannonBits(nonce) >= MinNonceBits &&
		!IsSequential(nonce) &&
		len(WeakPatterns(nonce)) == 0 &&
		CharClasses(nonce) >= MinCharClasses
}

// GenerateNonce draws a base62 nonce from rand, which should be
// crypto/rand.Reader outside tests. Candidates are drawn until one is strong.
func GenerateNonce(rand io.Reader) (string, error) {
	for attempt := 0; attempt < maxNonceAttempts; attempt++ {
		nonce, err := drawNonce(rand, GeneratedNonceLength)
		if err != nil {
			return "", fmt.Errorf("siwe: read random: %w", err)
		}
		if IsStrongNonce(nonce) {
			return nonce, nil
		}
	}
	return "", ErrNonceGeneration
}

// drawNonce uses rejection sampling so every alphabet symbol is equally likely.
func drawNonce(rand io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(nonceAlphabet)
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
