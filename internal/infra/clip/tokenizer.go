package clip

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"html"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

const (
	ContextLength = 77
	startOfText   = "<|startoftext|>"
	endOfText     = "<|endoftext|>"
	wordEnd       = "</w>"
	// mergeCount is the number of merges used from bpe_simple_vocab_16e6.
	mergeCount = 49152 - 256 - 2
)

var (
	tokenPattern = regexp.MustCompile(`(?i)<\|startoftext\|>|<\|endoftext\|>|'s|'t|'re|'ve|'m|'ll|'d|[\p{L}]+|[\p{N}]|[^\s\p{L}\p{N}]+`)
	spaces       = regexp.MustCompile(`\s+`)
)

type pair struct{ a, b string }

// Tokenizer is the byte-level BPE tokenizer CLIP's text tower was trained with.
type Tokenizer struct {
	byteEncoder [256]rune
	encoder     map[string]int64
	ranks       map[pair]int
	sot, eot    int64

	mu    sync.Mutex
	cache map[string][]string
}

// LoadTokenizer reads a merges file, gzipped when the name ends in .gz.
func LoadTokenizer(path string) (*Tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocab: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("open vocab: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return readTokenizer(r)
}

func readTokenizer(r io.Reader) (*Tokenizer, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var merges []pair
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		if len(merges) == mergeCount {
			break
		}
		fields := strings.Fields(sc.Text())
		if len(fields) != 2 {
			continue
		}
		merges = append(merges, pair{fields[0], fields[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read vocab: %w", err)
	}
	return newTokenizer(merges), nil
}

func newTokenizer(merges []pair) *Tokenizer {
	t := &Tokenizer{
		encoder: make(map[string]int64, 512+len(merges)+2),
		ranks:   make(map[pair]int, len(merges)),
		cache:   map[string][]string{startOfText: {startOfText}, endOfText: {endOfText}},
	}

	order := byteOrder()
	for i, b := range order {
		t.byteEncoder[b] = byteRune(i, b)
	}

	var vocab []string
	for _, b := range order {
		vocab = append(vocab, string(t.byteEncoder[b]))
	}
	for _, b := range order {
		vocab = append(vocab, string(t.byteEncoder[b])+wordEnd)
	}
	for i, m := range merges {
		vocab = append(vocab, m.a+m.b)
		t.ranks[m] = i
	}
	vocab = append(vocab, startOfText, endOfText)

	for i, v := range vocab {
		t.encoder[v] = int64(i)
	}
	t.sot = t.encoder[startOfText]
	t.eot = t.encoder[endOfText]
	return t
}

// byteOrder lists the printable bytes first, then the rest, matching the vocabulary's layout.
func byteOrder() []byte {
	var order []byte
	printable := [256]bool{}
	for _, r := range [][2]int{{'!', '~'}, {0xA1, 0xAC}, {0xAE, 0xFF}} {
		for b := r[0]; b <= r[1]; b++ {
			printable[b] = true
			order = append(order, byte(b))
		}
	}
	for b := 0; b < 256; b++ {
		if !printable[b] {
			order = append(order, byte(b))
		}
	}
	return order
}

// byteRune maps printable bytes to themselves and the rest to 256 and up.
func byteRune(pos int, b byte) rune {
	const printableCount = 188
	if pos < printableCount {
		return rune(b)
	}
	return rune(256 + pos - printableCount)
}

func cleanText(text string) string {
	text = html.UnescapeString(html.UnescapeString(text))
	text = spaces.ReplaceAllString(strings.TrimSpace(text), " ")
	return strings.ToLower(text)
}

// Encode returns the token ids without start and end markers.
func (t *Tokenizer) Encode(text string) []int64 {
	var ids []int64
	for _, word := range tokenPattern.FindAllString(cleanText(text), -1) {
		var sb strings.Builder
		for _, b := range []byte(word) {
			sb.WriteRune(t.byteEncoder[b])
		}
		for _, tok := range t.bpe(sb.String()) {
			if id, ok := t.encoder[tok]; ok {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// Tokenize returns ContextLength ids framed by start and end markers and zero padded, plus the attention mask.
// Over-long text is truncated so the end marker always fits.
func (t *Tokenizer) Tokenize(text string) (ids, mask []int64) {
	tokens := t.Encode(text)
	if len(tokens) > ContextLength-2 {
		tokens = tokens[:ContextLength-2]
	}
	ids = make([]int64, ContextLength)
	mask = make([]int64, ContextLength)
	ids[0] = t.sot
	copy(ids[1:], tokens)
	ids[len(tokens)+1] = t.eot
	for i := 0; i < len(tokens)+2; i++ {
		mask[i] = 1
	}
	return ids, mask
}

func (t *Tokenizer) bpe(token string) []string {
	t.mu.Lock()
	if cached, ok := t.cache[token]; ok {
		t.mu.Unlock()
		return cached
	}
	t.mu.Unlock()

	word := splitRunes(token)
	if len(word) == 0 {
		return nil
	}
	word[len(word)-1] += wordEnd

	for len(word) > 1 {
		best, bestRank := pair{}, -1
		for i := 0; i < len(word)-1; i++ {
			p := pair{word[i], word[i+1]}
			if r, ok := t.ranks[p]; ok && (bestRank < 0 || r < bestRank) {
				best, bestRank = p, r
			}
		}
		if bestRank < 0 {
			break
		}
		merged := make([]string, 0, len(word))
		for i := 0; i < len(word); i++ {
			if i < len(word)-1 && word[i] == best.a && word[i+1] == best.b {
				merged = append(merged, best.a+best.b)
				i++
				continue
			}
			merged = append(merged, word[i])
		}
		word = merged
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

func splitRunes(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
