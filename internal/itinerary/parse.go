// Package itinerary splits free-form itinerary text into day blocks.
package itinerary

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"tripcal/internal/model"
)

const markerPrefix = "Day "

// MaxDayNumber is the largest day number accepted from untrusted input.
const MaxDayNumber = 3650

// Parse scans plan left to right and returns every day block in the order
// its marker appears.
//
// A marker is the literal "Day ", one or more ASCII digits, and at least one
// separator rune (':' or whitespace). A block's content runs from the end of
// the separators up to the next "Day <digit>" occurrence or end of input,
// so content may span lines. Blocks never overlap.
//
// Parse panics if a day number does not fit in an int. Callers handling
// untrusted text should bound the input length or use CheckRange afterwards.
func Parse(plan string) []model.DayBlock {
	var blocks []model.DayBlock

	pos := 0
	for pos < len(plan) {
		start := nextMarker(plan, pos)
		if start < 0 {
			break
		}

		digitsStart := start + len(markerPrefix)
		digitsEnd := digitsStart
		for digitsEnd < len(plan) && isDigit(plan[digitsEnd]) {
			digitsEnd++
		}

		contentStart := skipSeparators(plan, digitsEnd)
		if contentStart == digitsEnd {
			// "Day 12x": digits without a separator do not open a block.
			pos = start + 1
			continue
		}

		contentEnd := nextMarker(plan, contentStart)
		if contentEnd < 0 {
			contentEnd = len(plan)
		}

		blocks = append(blocks, model.DayBlock{
			Day:     mustAtoi(plan[digitsStart:digitsEnd]),
			Content: strings.TrimSpace(plan[contentStart:contentEnd]),
		})
		pos = contentEnd
	}

	return blocks
}

// CheckRange reports an error if any block's day number exceeds maxDay.
// "Day 0" is allowed and lands on the day before the anchor. A zero or
// negative maxDay uses MaxDayNumber.
func CheckRange(blocks []model.DayBlock, maxDay int) error {
	if maxDay <= 0 {
		maxDay = MaxDayNumber
	}
	for _, b := range blocks {
		if b.Day > maxDay {
			return fmt.Errorf("itinerary: day %d exceeds %d", b.Day, maxDay)
		}
	}
	return nil
}

// CheckText bounds the day number of every marker Parse would accept,
// without risking its overflow panic. Digit runs that are not followed by a
// separator are ignored, as in Parse.
func CheckText(plan string, maxDay int) error {
	if maxDay <= 0 {
		maxDay = MaxDayNumber
	}
	limit := len(fmt.Sprint(maxDay))

	pos := 0
	for {
		start := nextMarker(plan, pos)
		if start < 0 {
			return nil
		}
		digitsStart := start + len(markerPrefix)
		digitsEnd := digitsStart
		for digitsEnd < len(plan) && isDigit(plan[digitsEnd]) {
			digitsEnd++
		}
		pos = start + 1
		if skipSeparators(plan, digitsEnd) == digitsEnd {
			continue
		}
		digits := strings.TrimLeft(plan[digitsStart:digitsEnd], "0")
		if len(digits) > limit {
			return fmt.Errorf("itinerary: day %s exceeds %d", digits, maxDay)
		}
	}
}

// nextMarker returns the index of the first "Day <digit>" at or after from,
// or -1.
func nextMarker(s string, from int) int {
	for from < len(s) {
		i := strings.Index(s[from:], markerPrefix)
		if i < 0 {
			return -1
		}
		at := from + i
		next := at + len(markerPrefix)
		if next < len(s) && isDigit(s[next]) {
			return at
		}
		from = at + 1
	}
	return -1
}

func skipSeparators(s string, i int) int {
	for i < len(s) {
		r, size := utf8.DecodeRuneInString(s[i:])
		if r != ':' && !unicode.IsSpace(r) {
			break
		}
		i += size
	}
	return i
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func mustAtoi(digits string) int {
	n := 0
	for i := 0; i < len(digits); i++ {
		d := int(digits[i] - '0')
		if n > (math.MaxInt-d)/10 {
			panic(fmt.Sprintf("itinerary: day number %q overflows int", digits))
		}
		n = n*10 + d
	}
	return n
}
