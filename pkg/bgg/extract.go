package bgg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrMalformedXML is returned when upstream markup cannot be decoded.
var ErrMalformedXML = errors.New("malformed xml")

type xmlValue struct {
	Value string `xml:"value,attr"`
}

type xmlName struct {
	Type  string `xml:"type,attr"`
	Value string `xml:"value,attr"`
}

type xmlLink struct {
	Type    string `xml:"type,attr"`
	ID      string `xml:"id,attr"`
	Value   string `xml:"value,attr"`
	Inbound string `xml:"inbound,attr"`
}

type xmlRank struct {
	Type  string `xml:"type,attr"`
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type xmlRatings struct {
	UsersRated    xmlValue  `xml:"usersrated"`
	Average       xmlValue  `xml:"average"`
	BayesAverage  xmlValue  `xml:"bayesaverage"`
	AverageWeight xmlValue  `xml:"averageweight"`
	Ranks         []xmlRank `xml:"ranks>rank"`
}

type xmlStatistics struct {
	Ratings xmlRatings `xml:"ratings"`
}

type xmlVersions struct {
	Items []xmlThing `xml:"item"`
}

type xmlThing struct {
	Type          string         `xml:"type,attr"`
	ID            string         `xml:"id,attr"`
	Thumbnail     string         `xml:"thumbnail"`
	Image         string         `xml:"image"`
	Names         []xmlName      `xml:"name"`
	Description   string         `xml:"description"`
	YearPublished xmlValue       `xml:"yearpublished"`
	MinPlayers    xmlValue       `xml:"minplayers"`
	MaxPlayers    xmlValue       `xml:"maxplayers"`
	PlayingTime   xmlValue       `xml:"playingtime"`
	MinPlayTime   xmlValue       `xml:"minplaytime"`
	MaxPlayTime   xmlValue       `xml:"maxplaytime"`
	MinAge        xmlValue       `xml:"minage"`
	Links         []xmlLink      `xml:"link"`
	Versions      *xmlVersions   `xml:"versions"`
	Statistics    *xmlStatistics `xml:"statistics"`
}

type xmlItems struct {
	XMLName xml.Name   `xml:"items"`
	Total   string     `xml:"total,attr"`
	Items   []xmlThing `xml:"item"`
}

type xmlErrorDoc struct {
	XMLName xml.Name `xml:""`
	Message string   `xml:"message"`
	Errors  []struct {
		Message string `xml:"message"`
	} `xml:"error"`
}

// Parser implements the extraction functions as methods so it can be passed
// where an extractor dependency is expected.
type Parser struct{}

// CleanXML calls the package level CleanXML.
func (Parser) CleanXML(raw []byte) []byte { return CleanXML(raw) }

// ExtractMetadata calls the package level ExtractMetadata.
func (Parser) ExtractMetadata(raw []byte) ([]GameMetadata, error) { return ExtractMetadata(raw) }

// ExtractSearchItems calls the package level ExtractSearchItems.
func (Parser) ExtractSearchItems(raw []byte) ([]SearchItem, error) { return ExtractSearchItems(raw) }

// CleanXML strips a byte order mark, anything before the first tag and
// control characters that are not legal in XML 1.0.
func CleanXML(raw []byte) []byte {
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
	if i := bytes.IndexByte(raw, '<'); i > 0 {
		raw = raw[i:]
	}

	out := make([]byte, 0, len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		switch {
		case r == utf8.RuneError && size == 1:
			// invalid byte, drop
		case r < 0x20 && r != '\t' && r != '\n' && r != '\r':
			// illegal control character, drop
		default:
			out = append(out, raw[:size]...)
		}
		raw = raw[size:]
	}
	return out
}

func decode(raw []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(raw))
	d.Strict = false
	d.AutoClose = xml.HTMLAutoClose
	d.Entity = xml.HTMLEntity
	if err := d.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	return nil
}

// ExtractMetadata parses a /thing response into metadata records, one per
// item, in document order.
func ExtractMetadata(raw []byte) ([]GameMetadata, error) {
	var doc xmlItems
	if err := decode(raw, &doc); err != nil {
		return nil, err
	}

	games := make([]GameMetadata, 0, len(doc.Items))
	for _, item := range doc.Items {
		if item.ID == "" {
			continue
		}
		games = append(games, thingToMetadata(item))
	}
	return games, nil
}

// ExtractSearchItems parses a /search response. Items repeated with several
// types collapse into one entry; an expansion label wins.
func ExtractSearchItems(raw []byte) ([]SearchItem, error) {
	var doc xmlItems
	if err := decode(raw, &doc); err != nil {
		return nil, err
	}

	items := make([]SearchItem, 0, len(doc.Items))
	seen := make(map[string]int, len(doc.Items))
	for _, it := range doc.Items {
		if it.ID == "" {
			continue
		}
		t := GameType(it.Type)
		if idx, ok := seen[it.ID]; ok {
			if t == TypeExpansion {
				items[idx].Type = TypeExpansion
			}
			continue
		}
		seen[it.ID] = len(items)
		items = append(items, SearchItem{
			ID:            it.ID,
			Name:          primaryName(it.Names),
			YearPublished: atoi(it.YearPublished.Value),
			Type:          t,
		})
	}
	return items, nil
}

// ParseError returns the message of an upstream error document such as
// <error><message>Rate limit exceeded.</message></error>.
func ParseError(raw []byte) (string, bool) {
	trimmed := bytes.TrimSpace(CleanXML(raw))
	if !bytes.HasPrefix(trimmed, []byte("<error")) && !bytes.HasPrefix(trimmed, []byte("<?xml")) {
		return "", false
	}

	var doc xmlErrorDoc
	if err := decode(trimmed, &doc); err != nil {
		return "", false
	}
	switch doc.XMLName.Local {
	case "error":
		return strings.TrimSpace(doc.Message), true
	case "errors":
		msgs := make([]string, 0, len(doc.Errors))
		for _, e := range doc.Errors {
			if m := strings.TrimSpace(e.Message); m != "" {
				msgs = append(msgs, m)
			}
		}
		return strings.Join(msgs, "; "), true
	}
	return "", false
}

func thingToMetadata(item xmlThing) GameMetadata {
	g := GameMetadata{
		ID:            item.ID,
		Name:          primaryName(item.Names),
		Type:          GameType(item.Type),
		YearPublished: atoi(item.YearPublished.Value),
		MinPlayers:    atoi(item.MinPlayers.Value),
		MaxPlayers:    atoi(item.MaxPlayers.Value),
		PlayingTime:   atoi(item.PlayingTime.Value),
		MinPlayTime:   atoi(item.MinPlayTime.Value),
		MaxPlayTime:   atoi(item.MaxPlayTime.Value),
		MinAge:        atoi(item.MinAge.Value),
		Description:   strings.TrimSpace(html.UnescapeString(item.Description)),
		Thumbnail:     strings.TrimSpace(item.Thumbnail),
		Image:         strings.TrimSpace(item.Image),
	}

	for _, n := range item.Names {
		if n.Type == "alternate" {
			g.AlternateNames = appendUnique(g.AlternateNames, n.Value)
		}
	}

	for _, l := range item.Links {
		switch l.Type {
		case "boardgamemechanic":
			g.Mechanics = appendUnique(g.Mechanics, l.Value)
		case "boardgamecategory":
			g.Categories = appendUnique(g.Categories, l.Value)
		case "boardgamedesigner":
			g.Designers = appendUnique(g.Designers, l.Value)
		case "boardgameexpansion":
			if l.Inbound == "true" {
				g.HasInboundExpansionLink = true
			}
		}
	}

	if item.Statistics != nil {
		r := item.Statistics.Ratings
		g.UsersRated = atoi(r.UsersRated.Value)
		g.AverageRating = atof(r.Average.Value)
		g.BayesAverageRating = atof(r.BayesAverage.Value)
		g.Weight = atof(r.AverageWeight.Value)
		for _, rank := range r.Ranks {
			if rank.Type == "subtype" {
				g.Rank = atoi(rank.Value)
				break
			}
		}
	}

	if item.Versions != nil {
		g.Versions = make([]Version, 0, len(item.Versions.Items))
		for _, v := range item.Versions.Items {
			g.Versions = append(g.Versions, thingToVersion(v))
		}
	}

	return g
}

func thingToVersion(item xmlThing) Version {
	v := Version{
		ID:            item.ID,
		Name:          primaryName(item.Names),
		YearPublished: atoi(item.YearPublished.Value),
		Thumbnail:     strings.TrimSpace(item.Thumbnail),
		Image:         strings.TrimSpace(item.Image),
	}
	for _, l := range item.Links {
		switch l.Type {
		case "language":
			v.Languages = appendUnique(v.Languages, l.Value)
		case "boardgamepublisher":
			v.Publishers = appendUnique(v.Publishers, l.Value)
		}
	}
	return v
}

func primaryName(names []xmlName) string {
	for _, n := range names {
		if n.Type == "primary" {
			return strings.TrimSpace(n.Value)
		}
	}
	if len(names) > 0 {
		return strings.TrimSpace(names[0].Value)
	}
	return ""
}

func appendUnique(list []string, v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return list
	}
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// atoi returns 0 for empty or non numeric values such as "Not Ranked".
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
