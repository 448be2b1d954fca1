package nutrition

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	mixedFractionRe = regexp.MustCompile(`^(\d+)\s+(\d+)\s*/\s*(\d+)`)
	fractionRe      = regexp.MustCompile(`^(\d+)\s*/\s*(\d+)`)
	decimalRe       = regexp.MustCompile(`^(\d+(?:\.\d+)?)`)
	numberTokenRe   = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ParseAmount extracts the leading numeric amount from a free-text
// quantity such as "2 cups", "1/2 cup" or "1 1/2 tbsp". The second
// return value reports whether a positive amount was found.
func ParseAmount(quantity string) (float64, bool) {
	s := strings.TrimSpace(quantity)
	if m := mixedFractionRe.FindStringSubmatch(s); m != nil {
		whole, _ := strconv.ParseFloat(m[1], 64)
		num, _ := strconv.ParseFloat(m[2], 64)
		den, _ := strconv.ParseFloat(m[3], 64)
		if den == 0 {
			return 0, false
		}
		v := whole + num/den
		return v, v > 0
	}
	if m := fractionRe.FindStringSubmatch(s); m != nil {
		num, _ := strconv.ParseFloat(m[1], 64)
		den, _ := strconv.ParseFloat(m[2], 64)
		if den == 0 {
			return 0, false
		}
		v := num / den
		return v, v > 0
	}
	if m := decimalRe.FindStringSubmatch(s); m != nil {
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false
		}
		return v, v > 0
	}
	return 0, false
}

// Rescale updates an entry's quantity text and, when both the old and new
// quantities carry a parseable positive amount, scales every nutrient by
// newAmount/oldAmount. Calories round to an integer, the other macros to
// one decimal place, all floored at zero. Numeric tokens embedded in the
// free-text micronutrients string scale by the same factor. If either
// amount is unparsable only the quantity text changes.
func Rescale(entry *FoodEntry, newQuantity string) {
	oldAmt, oldOK := ParseAmount(entry.Quantity)
	newAmt, newOK := ParseAmount(newQuantity)
	entry.Quantity = newQuantity
	if !oldOK || !newOK {
		return
	}

	factor := newAmt / oldAmt
	entry.Calories = math.Max(0, math.Round(entry.Calories*factor))
	entry.Protein = scaleMacro(entry.Protein, factor)
	entry.Carbs = scaleMacro(entry.Carbs, factor)
	entry.Fat = scaleMacro(entry.Fat, factor)
	entry.Fiber = scaleMacro(entry.Fiber, factor)
	entry.Micronutrients = scaleNumberTokens(entry.Micronutrients, factor)
}

func scaleMacro(v, factor float64) float64 {
	return math.Max(0, math.Round(v*factor*10)/10)
}

func scaleNumberTokens(text string, factor float64) string {
	return numberTokenRe.ReplaceAllStringFunc(text, func(tok string) string {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return tok
		}
		scaled := math.Round(v*factor*10) / 10
		return strconv.FormatFloat(scaled, 'f', -1, 64)
	})
}
