package wordclock

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive span of pixel indices
type Range struct {
	Low  int
	High int
}

// Len returns the number of pixels covered by the range
func (r Range) Len() int {
	return r.High - r.Low + 1
}

// Word identifies a fixed word on the clock face
type Word string

// Fixed words every face must provide
const (
	WordIt      Word = "it"
	WordIs      Word = "is"
	WordOClock  Word = "oclock"
	WordPast    Word = "past"
	WordTo      Word = "to"
	WordMinutes Word = "minutes"
)

var requiredWords = []Word{WordIt, WordIs, WordOClock, WordPast, WordTo, WordMinutes}

// MinuteBuckets lists the bucket values a face spells out. Buckets past the
// half hour are shown through their complement.
var MinuteBuckets = []int{5, 10, 15, 20, 25, 30}

// Layout maps clock segments to pixel ranges. It is immutable once built.
type Layout struct {
	pixels  int
	hours   [13]Range
	minutes map[int]Range
	words   map[Word]Range
}

// NewLayout validates the tables and returns a Layout. Every hour 1..12,
// every bucket in MinuteBuckets and every fixed word must be present, and
// every range must satisfy 0 <= Low <= High < pixels.
func NewLayout(pixels int, hours map[int]Range, minutes map[int]Range, words map[Word]Range) (*Layout, error) {
	if pixels <= 0 {
		return nil, fmt.Errorf("layout pixel count must be positive, got %d", pixels)
	}

	l := &Layout{
		pixels:  pixels,
		minutes: make(map[int]Range, len(MinuteBuckets)),
		words:   make(map[Word]Range, len(requiredWords)),
	}

	for h := 1; h <= 12; h++ {
		r, ok := hours[h]
		if !ok {
			return nil, fmt.Errorf("layout is missing hour %d", h)
		}
		if err := checkRange(r, pixels); err != nil {
			return nil, fmt.Errorf("hour %d: %w", h, err)
		}
		l.hours[h] = r
	}

	for _, b := range MinuteBuckets {
		r, ok := minutes[b]
		if !ok {
			return nil, fmt.Errorf("layout is missing minute bucket %d", b)
		}
		if err := checkRange(r, pixels); err != nil {
			return nil, fmt.Errorf("minute bucket %d: %w", b, err)
		}
		l.minutes[b] = r
	}

	for _, w := range requiredWords {
		r, ok := words[w]
		if !ok {
			return nil, fmt.Errorf("layout is missing word %q", w)
		}
		if err := checkRange(r, pixels); err != nil {
			return nil, fmt.Errorf("word %q: %w", w, err)
		}
		l.words[w] = r
	}

	return l, nil
}

func checkRange(r Range, pixels int) error {
	if r.Low < 0 || r.Low > r.High || r.High >= pixels {
		return fmt.Errorf("range [%d,%d] outside 0..%d", r.Low, r.High, pixels-1)
	}
	return nil
}

// DefaultLayout returns the 70 pixel English face
func DefaultLayout() *Layout {
	l, err := NewLayout(70,
		map[int]Range{
			1: {13, 14}, 2: {29, 30}, 3: {9, 12}, 4: {41, 43},
			5: {26, 28}, 6: {7, 8}, 7: {36, 38}, 8: {20, 22},
			9: {23, 25}, 10: {5, 6}, 11: {15, 19}, 12: {31, 35},
		},
		map[int]Range{
			5: {56, 58}, 10: {54, 55}, 15: {63, 67},
			20: {59, 62}, 25: {56, 62}, 30: {50, 53},
		},
		map[Word]Range{
			WordIt: {69, 69}, WordIs: {68, 68}, WordMinutes: {45, 49},
			WordOClock: {0, 4}, WordTo: {44, 44}, WordPast: {39, 40},
		},
	)
	if err != nil {
		panic(fmt.Sprintf("built-in layout is invalid: %v", err))
	}
	return l
}

// Pixels returns the number of pixels the layout addresses
func (l *Layout) Pixels() int {
	return l.pixels
}

// Hour returns the range spelling the given hour (1..12)
func (l *Layout) Hour(h int) Range {
	return l.hours[h]
}

// Minutes returns the range spelling the given bucket (one of MinuteBuckets)
func (l *Layout) Minutes(bucket int) Range {
	return l.minutes[bucket]
}

// Word returns the range of a fixed word
func (l *Layout) Word(w Word) Range {
	return l.words[w]
}

// layoutFile is the YAML form of a face layout; ranges are [low, high] pairs
type layoutFile struct {
	Pixels  int               `yaml:"pixels"`
	Hours   map[int][2]int    `yaml:"hours"`
	Minutes map[int][2]int    `yaml:"minutes"`
	Words   map[string][2]int `yaml:"words"`
}

// ParseLayout builds a Layout from its YAML document
func ParseLayout(data []byte) (*Layout, error) {
	var f layoutFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse layout YAML: %w", err)
	}

	hours := make(map[int]Range, len(f.Hours))
	for h, r := range f.Hours {
		hours[h] = Range{r[0], r[1]}
	}
	minutes := make(map[int]Range, len(f.Minutes))
	for b, r := range f.Minutes {
		minutes[b] = Range{r[0], r[1]}
	}
	words := make(map[Word]Range, len(f.Words))
	for w, r := range f.Words {
		words[Word(w)] = Range{r[0], r[1]}
	}

	return NewLayout(f.Pixels, hours, minutes, words)
}

// LoadLayout reads a face layout from a YAML file
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read layout file: %w", err)
	}
	return ParseLayout(data)
}

// sortRanges orders ranges by Low then High
func sortRanges(ranges []Range) {
	sort.Slice(ranges, func(i, j int) bool {
		if ranges[i].Low != ranges[j].Low {
			return ranges[i].Low < ranges[j].Low
		}
		return ranges[i].High < ranges[j].High
	})
}
