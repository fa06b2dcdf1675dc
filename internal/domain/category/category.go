package category

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	Action     = "action"
	Dialogue   = "dialogue"
	Landscape  = "landscape"
	People     = "people"
	Text       = "text"
	KeyMoments = "key_moments"
)

var defaultDescriptions = map[string]string{
	Action:     "a fast moving action scene with motion, running, fighting or sports",
	Dialogue:   "two or more people talking to each other in a conversation",
	Landscape:  "a wide outdoor landscape with nature, sky, mountains, water or a city skyline",
	People:     "close up of people, faces and human figures",
	Text:       "text, titles, captions, slides or written words on screen",
	KeyMoments: "an important dramatic key moment, a highlight of the video",
}

// Vocabulary maps the fixed category keys to the descriptions used as text targets.
type Vocabulary struct {
	descriptions map[string]string
}

func Default() *Vocabulary {
	d := make(map[string]string, len(defaultDescriptions))
	for k, v := range defaultDescriptions {
		d[k] = v
	}
	return &Vocabulary{descriptions: d}
}

type fileFormat struct {
	Categories map[string]string `yaml:"categories"`
}

// Load returns the default vocabulary with descriptions overridden from a YAML file.
// Keys in the file must already exist; the key set itself is fixed.
func Load(path string) (*Vocabulary, error) {
	v := Default()
	if path == "" {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read category file: %w", err)
	}
	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse category file: %w", err)
	}
	for key, desc := range f.Categories {
		if _, ok := v.descriptions[key]; !ok {
			return nil, fmt.Errorf("unknown category %q in %s", key, path)
		}
		if strings.TrimSpace(desc) == "" {
			return nil, fmt.Errorf("empty description for category %q", key)
		}
		v.descriptions[key] = desc
	}
	return v, nil
}

func (v *Vocabulary) Has(key string) bool {
	_, ok := v.descriptions[key]
	return ok
}

func (v *Vocabulary) Description(key string) (string, bool) {
	d, ok := v.descriptions[key]
	return d, ok
}

// Keys returns the category keys in sorted order.
func (v *Vocabulary) Keys() []string {
	keys := make([]string, 0, len(v.descriptions))
	for k := range v.descriptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// DisplayName turns "key_moments" into "Key Moments".
func DisplayName(key string) string {
	words := strings.Split(key, "_")
	for i, w := range words {
		if w != "" {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
