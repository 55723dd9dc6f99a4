package csvfile

import (
	"bufio"
	"bytes"
)

// candidates are the delimiters considered by DetectDelimiter, in tie-break order.
var candidates = []byte{',', ';', '\t', '|'}

const sniffLines = 5

// DetectDelimiter picks the candidate that occurs most often in the first
// lines of sample. An empty sample or one with no candidate yields ','.
func DetectDelimiter(sample []byte) rune {
	counts := make(map[byte]int, len(candidates))
	sc := bufio.NewScanner(bytes.NewReader(sample))
	sc.Buffer(make([]byte, 0, 64*1024), len(sample)+1)
	for n := 0; n < sniffLines && sc.Scan(); n++ {
		line := sc.Bytes()
		for _, c := range candidates {
			counts[c] += bytes.Count(line, []byte{c})
		}
	}

	best := byte(',')
	for _, c := range candidates {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return rune(best)
}
