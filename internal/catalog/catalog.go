// Package catalog holds the stories a video can be generated for.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/storyreel/api/internal/model"
)

var builtin = []model.Story{
	{ID: "creation", Title: "The Creation"},
	{ID: "adam-and-eve", Title: "Adam and Eve"},
	{ID: "noahs-ark", Title: "Noah's Ark"},
	{ID: "abraham-and-isaac", Title: "Abraham and Isaac"},
	{ID: "moses-and-the-exodus", Title: "Moses and the Exodus"},
	{ID: "david-and-goliath", Title: "David and Goliath"},
	{ID: "jonah-and-the-whale", Title: "Jonah and the Whale"},
	{ID: "daniel-in-the-lions-den", Title: "Daniel in the Lion's Den"},
	{ID: "jesus-birth", Title: "Jesus' Birth"},
	{ID: "jesus-baptism", Title: "Jesus' Baptism"},
	{ID: "the-good-samaritan", Title: "The Good Samaritan"},
	{ID: "jesus-feeds-5000", Title: "Jesus Feeds 5000"},
	{ID: "jesus-walks-on-water", Title: "Jesus Walks on Water"},
	{ID: "the-resurrection", Title: "The Resurrection"},
	{ID: "pauls-conversion", Title: "Paul's Conversion"},
}

// Catalog is an immutable story list
type Catalog struct {
	stories []model.Story
	index   map[string]model.Story
}

// New builds a catalog. Stories are found by id or by title, ignoring case.
func New(stories []model.Story) (*Catalog, error) {
	c := &Catalog{index: make(map[string]model.Story, len(stories)*2)}
	for _, s := range stories {
		s.ID = strings.TrimSpace(s.ID)
		s.Title = strings.TrimSpace(s.Title)
		if s.ID == "" || s.Title == "" {
			return nil, fmt.Errorf("catalog entry needs id and title: %+v", s)
		}
		if prev, dup := c.index[normalize(s.ID)]; dup {
			return nil, fmt.Errorf("catalog id %q collides with story %q", s.ID, prev.ID)
		}
		if prev, dup := c.index[normalize(s.Title)]; dup {
			return nil, fmt.Errorf("catalog title %q collides with story %q", s.Title, prev.ID)
		}
		c.stories = append(c.stories, s)
		c.index[normalize(s.ID)] = s
		c.index[normalize(s.Title)] = s
	}
	return c, nil
}

// Default returns the built-in catalog
func Default() *Catalog {
	c, _ := New(builtin)
	return c
}

type file struct {
	Stories []model.Story `yaml:"stories"`
}

// Load reads a YAML catalog of the form {stories: [{id, title}]}. An empty
// path returns the built-in catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(f.Stories) == 0 {
		return nil, fmt.Errorf("catalog %s has no stories", path)
	}
	return New(f.Stories)
}

func (c *Catalog) Lookup(idOrTitle string) (model.Story, bool) {
	s, ok := c.index[normalize(idOrTitle)]
	return s, ok
}

// List returns the stories in catalog order
func (c *Catalog) List() []model.Story {
	return append([]model.Story(nil), c.stories...)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
