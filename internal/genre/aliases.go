package genre

// CanonicalAliases maps common source spellings to canonical slugs.
// Comic Vine reports concepts and MangaDex reports tags; both spell the same
// genre many ways.
var CanonicalAliases = map[string][]string{
	// Superhero variations
	"superhero":    {"superhero"},
	"superheroes":  {"superhero"},
	"super-hero":   {"superhero"},
	"super-heroes": {"superhero"},
	"capes":        {"superhero"},

	// Science Fiction variations
	"sci-fi":          {"science-fiction"},
	"scifi":           {"science-fiction"},
	"sf":              {"science-fiction"},
	"science-fiction": {"science-fiction"},
	"mecha":           {"mecha", "science-fiction"},
	"cyberpunk":       {"cyberpunk", "science-fiction"},

	// Combined genres -> multiple
	"sci-fi-fantasy":    {"science-fiction", "fantasy"},
	"horror-thriller":   {"horror", "thriller"},
	"action-adventure":  {"action", "adventure"},
	"mystery-thriller":  {"mystery", "thriller"},
	"romantic-comedy":   {"romance", "comedy"},
	"fantasy-adventure": {"fantasy", "adventure"},

	// Crime and mystery
	"crime":     {"crime"},
	"noir":      {"crime"},
	"detective": {"mystery"},
	"suspense":  {"thriller"},

	// Humor
	"humor":  {"comedy"},
	"humour": {"comedy"},
	"funny":  {"comedy"},

	// Slice of life
	"slice-of-life": {"slice-of-life"},
	"sol":           {"slice-of-life"},

	// Manga demographics
	"shounen": {"shonen"},
	"shonen":  {"shonen"},
	"shoujo":  {"shojo"},
	"shojo":   {"shojo"},
	"seinen":  {"seinen"},
	"josei":   {"josei"},

	// Romance subgenres as MangaDex tags them
	"boys-love":  {"boys-love", "romance"},
	"bl":         {"boys-love", "romance"},
	"yaoi":       {"boys-love", "romance"},
	"girls-love": {"girls-love", "romance"},
	"gl":         {"girls-love", "romance"},
	"yuri":       {"girls-love", "romance"},

	// Isekai and progression
	"isekai":         {"isekai", "fantasy"},
	"reincarnation":  {"isekai"},
	"transmigration": {"isekai"},

	// Horror
	"horror":       {"horror"},
	"supernatural": {"supernatural"},
	"occult":       {"supernatural"},

	// War and history
	"war":        {"war"},
	"military":   {"war"},
	"historical": {"historical"},
	"history":    {"historical"},
}

// DisplayNames is the canonical display form of each slug.
var DisplayNames = map[string]string{
	"action":          "Action",
	"adventure":       "Adventure",
	"boys-love":       "Boys' Love",
	"comedy":          "Comedy",
	"crime":           "Crime",
	"cyberpunk":       "Cyberpunk",
	"drama":           "Drama",
	"fantasy":         "Fantasy",
	"girls-love":      "Girls' Love",
	"historical":      "Historical",
	"horror":          "Horror",
	"isekai":          "Isekai",
	"josei":           "Josei",
	"mecha":           "Mecha",
	"mystery":         "Mystery",
	"romance":         "Romance",
	"science-fiction": "Science Fiction",
	"seinen":          "Seinen",
	"shojo":           "Shojo",
	"shonen":          "Shonen",
	"slice-of-life":   "Slice of Life",
	"sports":          "Sports",
	"superhero":       "Superhero",
	"supernatural":    "Supernatural",
	"thriller":        "Thriller",
	"war":             "War",
	"western":         "Western",
}

// NormalizeToSlugs takes a raw genre string and returns canonical slug(s).
// Returns the slugified input if no specific mapping found.
func NormalizeToSlugs(raw string) []string {
	slug := Slugify(raw)
	if slug == "" {
		return nil
	}

	if canonical, ok := CanonicalAliases[slug]; ok {
		return canonical
	}

	return []string{slug}
}

// Normalize maps raw source genres to canonical display names, preserving
// first-seen order and dropping duplicates. Unknown genres keep their
// original spelling.
func Normalize(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, r := range raw {
		for _, slug := range NormalizeToSlugs(r) {
			if seen[slug] {
				continue
			}
			seen[slug] = true

			name, ok := DisplayNames[slug]
			if !ok {
				name = r
			}
			out = append(out, name)
		}
	}
	return out
}
