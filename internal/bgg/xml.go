package bgg

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// The XML API v2 wire shapes, mirrored only as deep as normalization needs.
type thingItems struct {
	XMLName xml.Name    `xml:"items"`
	Items   []thingItem `xml:"item"`
}

type thingItem struct {
	ID          string       `xml:"id,attr"`
	Type        string       `xml:"type,attr"`
	Names       []thingName  `xml:"name"`
	Description string       `xml:"description"`
	Image       string       `xml:"image"`
	Thumbnail   string       `xml:"thumbnail"`
	YearPub     valueAttr    `xml:"yearpublished"`
	MinPlayers  valueAttr    `xml:"minplayers"`
	MaxPlayers  valueAttr    `xml:"maxplayers"`
	PlayingTime valueAttr    `xml:"playingtime"`
	MinAge      valueAttr    `xml:"minage"`
	Links       []thingLink  `xml:"link"`
	Statistics  *thingStats  `xml:"statistics"`
}

type thingName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type thingLink struct {
	Type  string `xml:"type,attr"`
	ID    string `xml:"id,attr"`
	Value string `xml:"value,attr"`
}

type valueAttr struct {
	Value string `xml:"value,attr"`
}

type thingStats struct {
	Ratings struct {
		Average    valueAttr `xml:"average"`
		UsersRated valueAttr `xml:"usersrated"`
		Ranks      struct {
			Rank []struct {
				Name  string `xml:"name,attr"`
				Value string `xml:"value,attr"`
			} `xml:"rank"`
		} `xml:"ranks"`
	} `xml:"ratings"`
}

// normalize parses one thing response and flattens it into Metadata. The
// first item wins; an empty item list is an error so the caller can record a
// partial result.
func normalize(body []byte, id string) (*Metadata, error) {
	var items thingItems
	if err := xml.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("parse BGG XML: %w", err)
	}
	if len(items.Items) == 0 {
		return nil, fmt.Errorf("BGG response for id %s has no items", id)
	}
	it := items.Items[0]

	md := &Metadata{
		ID:          id,
		Title:       primaryName(it.Names),
		Year:        atoi(it.YearPub.Value),
		MinPlayers:  atoi(it.MinPlayers.Value),
		MaxPlayers:  atoi(it.MaxPlayers.Value),
		PlayingTime: atoi(it.PlayingTime.Value),
		MinAge:      atoi(it.MinAge.Value),
		Description: it.Description,
		Image:       strings.TrimSpace(it.Image),
		Thumbnail:   strings.TrimSpace(it.Thumbnail),
	}
	if it.ID != "" {
		md.ID = it.ID
	}
	for _, l := range it.Links {
		entry := Link{ID: l.ID, Value: l.Value}
		switch l.Type {
		case "boardgamecategory":
			md.Categories = append(md.Categories, entry)
		case "boardgamemechanic":
			md.Mechanics = append(md.Mechanics, entry)
		case "boardgamedesigner":
			md.Designers = append(md.Designers, entry)
		case "boardgameartist":
			md.Artists = append(md.Artists, entry)
		case "boardgamepublisher":
			md.Publishers = append(md.Publishers, entry)
		case "boardgameexpansion":
			md.Expansions = append(md.Expansions, entry)
		case "boardgamefamily":
			md.Families = append(md.Families, entry)
		}
	}
	if st := it.Statistics; st != nil {
		md.Stats.Average = atof(st.Ratings.Average.Value)
		md.Stats.UsersRated = atoi(st.Ratings.UsersRated.Value)
		for _, r := range st.Ratings.Ranks.Rank {
			if r.Name == "boardgame" {
				md.Stats.Rank = atoi(r.Value)
				break
			}
		}
	}
	return md, nil
}

// primaryName picks the type="primary" entry, falling back to the first.
func primaryName(names []thingName) string {
	for _, n := range names {
		if n.Type == "primary" {
			return n.Value
		}
	}
	if len(names) > 0 {
		return names[0].Value
	}
	return ""
}

// atoi coerces an attribute value; the API writes "Not Ranked" and empty
// strings where numbers belong, both of which read as zero.
func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
