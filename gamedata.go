/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	_ "embed"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed gamedata.yaml
var gameDataYAML []byte

type Difficulty struct {
	Threshold int    `yaml:"threshold" json:"threshold"`
	Label     string `yaml:"label" json:"label"`
	Default   bool   `yaml:"default" json:"default,omitempty"`
}

type Milestone struct {
	Length int    `yaml:"length"`
	Text   string `yaml:"text"`
}

type Ending struct {
	MinLength int    `yaml:"min_length"`
	Text      string `yaml:"text"`
}

// GameData is the static content of the game: difficulties, starter tags,
// milestones and end-of-game messages.
type GameData struct {
	Difficulties []Difficulty `yaml:"difficulties"`
	Milestones   []Milestone  `yaml:"milestones"`
	Endings      struct {
		LegendaryLength int      `yaml:"legendary_length"`
		Messages        []Ending `yaml:"messages"`
	} `yaml:"endings"`
	Starters []string `yaml:"starters"`
}

func loadGameData(data []byte) (*GameData, error) {
	gd := &GameData{}
	if err := yaml.Unmarshal(data, gd); err != nil {
		return nil, fmt.Errorf("decoding game data: %w", err)
	}

	if err := gd.validate(); err != nil {
		return nil, err
	}

	sort.Slice(gd.Difficulties, func(i, j int) bool {
		return gd.Difficulties[i].Threshold < gd.Difficulties[j].Threshold
	})
	sort.Slice(gd.Endings.Messages, func(i, j int) bool {
		return gd.Endings.Messages[i].MinLength > gd.Endings.Messages[j].MinLength
	})

	return gd, nil
}

func (gd *GameData) validate() error {
	if len(gd.Difficulties) == 0 {
		return errors.New("game data: no difficulties defined")
	}

	seen := make(map[int]bool, len(gd.Difficulties))
	defaults := 0
	for _, d := range gd.Difficulties {
		if d.Threshold < 1 {
			return fmt.Errorf("game data: invalid threshold %d", d.Threshold)
		}
		if seen[d.Threshold] {
			return fmt.Errorf("game data: duplicate threshold %d", d.Threshold)
		}
		seen[d.Threshold] = true
		if d.Default {
			defaults++
		}
	}
	if defaults != 1 {
		return fmt.Errorf("game data: expected exactly one default difficulty, found %d", defaults)
	}

	if len(gd.Starters) == 0 {
		return errors.New("game data: no starter tags defined")
	}

	return nil
}

func (gd *GameData) difficulty(threshold int) (Difficulty, bool) {
	for _, d := range gd.Difficulties {
		if d.Threshold == threshold {
			return d, true
		}
	}
	return Difficulty{}, false
}

func (gd *GameData) defaultThreshold() int {
	for _, d := range gd.Difficulties {
		if d.Default {
			return d.Threshold
		}
	}
	return gd.Difficulties[0].Threshold
}

func (gd *GameData) milestone(length int) (string, bool) {
	for _, m := range gd.Milestones {
		if m.Length == length {
			return m.Text, true
		}
	}
	return "", false
}

// ending returns the end screen title and message for a chain length.
func (gd *GameData) ending(length int) (string, string) {
	title := "Chain Complete!"
	if gd.Endings.LegendaryLength > 0 && length >= gd.Endings.LegendaryLength {
		title = "Legendary Chain!"
	}

	for _, e := range gd.Endings.Messages {
		if length >= e.MinLength {
			return title, e.Text
		}
	}

	return title, ""
}

func (gd *GameData) randomStarter() string {
	return gd.Starters[rand.IntN(len(gd.Starters))]
}

// sampleStarters returns up to n distinct starter tags in random order.
func (gd *GameData) sampleStarters(n int) []string {
	out := make([]string, len(gd.Starters))
	copy(out, gd.Starters)

	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})

	if n < len(out) {
		out = out[:n]
	}

	return out
}
