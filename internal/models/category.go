package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Category classifies a broadcast session. Values are stored and serialized
// by enum name; display names are the human-readable labels shown to viewers.
type Category string

const (
	CategoryGaming       Category = "GAMING"
	CategoryJustChatting Category = "JUST_CHATTING"
	CategoryCreative     Category = "CREATIVE"
	CategorySports       Category = "SPORTS"
	CategoryTravel       Category = "TRAVEL_AND_OUTDOORS"
	CategoryFoodDrink    Category = "FOOD_AND_DRINK"
	CategoryFitness      Category = "FITNESS_AND_HEALTH"
	CategoryScienceTech  Category = "SCIENCE_AND_TECHNOLOGY"
	CategoryEducational  Category = "EDUCATIONAL"
	CategoryPodcast      Category = "PODCAST"
	CategoryTalkShows    Category = "TALK_SHOWS"
	CategoryEsports      Category = "ESPORTS"
	CategoryPolitics     Category = "POLITICS"
	CategoryASMR         Category = "ASMR"
	CategoryVariety      Category = "VARIETY"
	CategoryOther        Category = "OTHER"
)

var categoryDisplayNames = map[Category]string{
	CategoryGaming:       "Gaming",
	CategoryJustChatting: "Just Chatting",
	CategoryCreative:     "Art & Creative",
	CategorySports:       "Sports",
	CategoryTravel:       "Travel & Outdoors",
	CategoryFoodDrink:    "Food & Drink",
	CategoryFitness:      "Fitness & Health",
	CategoryScienceTech:  "Science & Technology",
	CategoryEducational:  "Educational",
	CategoryPodcast:      "Podcast",
	CategoryTalkShows:    "Talk Shows",
	CategoryEsports:      "Esports",
	CategoryPolitics:     "Politics",
	CategoryASMR:         "ASMR",
	CategoryVariety:      "Variety",
	CategoryOther:        "Other",
}

var categoryOrder = []Category{
	CategoryGaming,
	CategoryJustChatting,
	CategoryCreative,
	CategorySports,
	CategoryTravel,
	CategoryFoodDrink,
	CategoryFitness,
	CategoryScienceTech,
	CategoryEducational,
	CategoryPodcast,
	CategoryTalkShows,
	CategoryEsports,
	CategoryPolitics,
	CategoryASMR,
	CategoryVariety,
	CategoryOther,
}

// Categories returns every known category in catalogue order.
func Categories() []Category {
	return append([]Category(nil), categoryOrder...)
}

// Valid reports whether the category is a known enum member.
func (c Category) Valid() bool {
	_, ok := categoryDisplayNames[c]
	return ok
}

// DisplayName returns the human-readable label for the category. Unknown
// values fall back to the OTHER label.
func (c Category) DisplayName() string {
	if name, ok := categoryDisplayNames[c]; ok {
		return name
	}
	return categoryDisplayNames[CategoryOther]
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

// ParseCategory resolves a category from its enum name, ignoring case and
// surrounding whitespace.
func ParseCategory(value string) (Category, error) {
	candidate := Category(strings.ToUpper(strings.TrimSpace(value)))
	if candidate.Valid() {
		return candidate, nil
	}
	return "", fmt.Errorf("unknown category %q", value)
}

// MarshalJSON encodes the category by enum name.
func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(c))
}

// UnmarshalJSON decodes a category from its enum name. Empty and null inputs
// reset the value so callers can apply their own defaults.
func (c *Category) UnmarshalJSON(data []byte) error {
	if c == nil {
		return fmt.Errorf("models: cannot decode into nil Category pointer")
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*c = ""
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode category: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		*c = ""
		return nil
	}
	parsed, err := ParseCategory(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
