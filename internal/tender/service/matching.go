package service

import (
	"sort"
	"strings"
	"unicode"
)

// tokenize 描述文本 → 规整后的词元集合
func tokenize(s string) map[string]struct{} {
	tokens := map[string]struct{}{}
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			tokens[b.String()] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}

// TokenSetRatio 词元集合相似度，取值[0,1]
//
// Dice coefficient over token sets, boosted to 1.0 when one side's tokens
// are fully contained in the other (token-set semantics: "supply of cement"
// vs "cement" is a full match). Deterministic for identical inputs.
func TokenSetRatio(a, b string) float64 {
	ta := tokenize(a)
	tb := tokenize(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}

	inter := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			inter++
		}
	}
	if inter == 0 {
		return 0
	}

	smaller := len(ta)
	if len(tb) < smaller {
		smaller = len(tb)
	}
	if inter == smaller {
		return 1.0
	}

	return 2.0 * float64(inter) / float64(len(ta)+len(tb))
}

// normalizeItemNumber 条目编号规整（大小写、空白、前导零敏感性消除）
func normalizeItemNumber(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Trim(s, ".")
	return strings.Join(strings.Fields(s), "")
}

// uomSynonyms 单位别名 → 规范单位
var uomSynonyms = map[string]string{
	"pcs": "ea", "pc": "ea", "no": "ea", "nos": "ea", "each": "ea", "unit": "ea", "units": "ea",
	"mtr": "m", "meter": "m", "metre": "m", "lm": "m", "rm": "m",
	"sqm": "m2", "sq.m": "m2", "m²": "m2",
	"cum": "m3", "cu.m": "m3", "m³": "m3",
	"kgs": "kg", "kilogram": "kg",
	"gm": "g", "gr": "g",
	"ltr": "l", "litre": "l", "liter": "l", "lt": "l",
	"ton": "t", "tonne": "t", "mt": "t",
	"hr": "h", "hrs": "h", "hour": "h",
	"mth": "month", "months": "month",
	"day": "d", "days": "d",
}

// uomFactors 单位换算因子：1个from单位 = factor个to单位
var uomFactors = map[string]map[string]float64{
	"mm": {"cm": 0.1, "m": 0.001},
	"cm": {"mm": 10, "m": 0.01},
	"m":  {"mm": 1000, "cm": 100, "km": 0.001},
	"km": {"m": 1000},
	"g":  {"kg": 0.001},
	"kg": {"g": 1000, "t": 0.001},
	"t":  {"kg": 1000},
	"ml": {"l": 0.001},
	"l":  {"ml": 1000, "m3": 0.001},
	"m3": {"l": 1000},
	"h":  {"d": 1.0 / 24},
	"d":  {"h": 24},
}

// NormalizeUOM 单位规整为规范形式
func NormalizeUOM(uom string) string {
	u := strings.ToLower(strings.TrimSpace(uom))
	u = strings.TrimSuffix(u, ".")
	if canonical, ok := uomSynonyms[u]; ok {
		return canonical
	}
	return u
}

// UOMFactor 返回换算因子：1个from单位等于多少个to单位
//
// Returns ok=false when the pair has no convertible factor; the caller
// flags the line non-comparable.
func UOMFactor(from, to string) (float64, bool) {
	f := NormalizeUOM(from)
	t := NormalizeUOM(to)
	if f == t {
		return 1, true
	}
	if m, ok := uomFactors[f]; ok {
		if factor, ok := m[t]; ok {
			return factor, true
		}
	}
	return 0, false
}

// medianOf 中位数（输入就地排序）
func medianOf(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
