package domain

import "encoding/xml"

// Metadata field names. They double as FieldChange keys in review sessions.
const (
	FieldSeries      = "series"
	FieldTitle       = "title"
	FieldNumber      = "number"
	FieldVolume      = "volume"
	FieldCount       = "count"
	FieldSummary     = "summary"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldDay         = "day"
	FieldWriter      = "writer"
	FieldPenciller   = "penciller"
	FieldInker       = "inker"
	FieldColorist    = "colorist"
	FieldLetterer    = "letterer"
	FieldCoverArtist = "coverArtist"
	FieldEditor      = "editor"
	FieldPublisher   = "publisher"
	FieldImprint     = "imprint"
	FieldGenre       = "genre"
	FieldWeb         = "web"
	FieldLanguageISO = "languageISO"
	FieldManga       = "manga"
	FieldStoryArc    = "storyArc"
	FieldCharacters  = "characters"
	FieldAgeRating   = "ageRating"

	// FieldRename is synthetic: it carries the proposed filename, not archive metadata.
	FieldRename = "rename"
)

// ComicMetadata mirrors the ComicInfo.xml schema. Every value is kept as text;
// numeric elements are written back verbatim.
type ComicMetadata struct {
	XMLName     xml.Name `xml:"ComicInfo" json:"-"`
	Title       string   `xml:"Title,omitempty" json:"title,omitempty"`
	Series      string   `xml:"Series,omitempty" json:"series,omitempty"`
	Number      string   `xml:"Number,omitempty" json:"number,omitempty"`
	Count       string   `xml:"Count,omitempty" json:"count,omitempty"`
	Volume      string   `xml:"Volume,omitempty" json:"volume,omitempty"`
	Summary     string   `xml:"Summary,omitempty" json:"summary,omitempty"`
	Year        string   `xml:"Year,omitempty" json:"year,omitempty"`
	Month       string   `xml:"Month,omitempty" json:"month,omitempty"`
	Day         string   `xml:"Day,omitempty" json:"day,omitempty"`
	Writer      string   `xml:"Writer,omitempty" json:"writer,omitempty"`
	Penciller   string   `xml:"Penciller,omitempty" json:"penciller,omitempty"`
	Inker       string   `xml:"Inker,omitempty" json:"inker,omitempty"`
	Colorist    string   `xml:"Colorist,omitempty" json:"colorist,omitempty"`
	Letterer    string   `xml:"Letterer,omitempty" json:"letterer,omitempty"`
	CoverArtist string   `xml:"CoverArtist,omitempty" json:"coverArtist,omitempty"`
	Editor      string   `xml:"Editor,omitempty" json:"editor,omitempty"`
	Publisher   string   `xml:"Publisher,omitempty" json:"publisher,omitempty"`
	Imprint     string   `xml:"Imprint,omitempty" json:"imprint,omitempty"`
	Genre       string   `xml:"Genre,omitempty" json:"genre,omitempty"`
	Web         string   `xml:"Web,omitempty" json:"web,omitempty"`
	PageCount   string   `xml:"PageCount,omitempty" json:"pageCount,omitempty"`
	LanguageISO string   `xml:"LanguageISO,omitempty" json:"languageISO,omitempty"`
	Manga       string   `xml:"Manga,omitempty" json:"manga,omitempty"`
	StoryArc    string   `xml:"StoryArc,omitempty" json:"storyArc,omitempty"`
	Characters  string   `xml:"Characters,omitempty" json:"characters,omitempty"`
	AgeRating   string   `xml:"AgeRating,omitempty" json:"ageRating,omitempty"`

	// Extra keeps elements this type does not model (Pages, Notes) so a
	// rewrite does not drop them.
	Extra []RawElement `xml:",any" json:"-"`
}

// RawElement is an unmodeled ComicInfo.xml element kept verbatim.
type RawElement struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Inner   []byte     `xml:",innerxml"`
}

type metadataField struct {
	name string
	ptr  func(*ComicMetadata) *string
}

// metadataFields is ordered the way fields are presented for review.
var metadataFields = []metadataField{
	{FieldSeries, func(m *ComicMetadata) *string { return &m.Series }},
	{FieldNumber, func(m *ComicMetadata) *string { return &m.Number }},
	{FieldVolume, func(m *ComicMetadata) *string { return &m.Volume }},
	{FieldTitle, func(m *ComicMetadata) *string { return &m.Title }},
	{FieldCount, func(m *ComicMetadata) *string { return &m.Count }},
	{FieldSummary, func(m *ComicMetadata) *string { return &m.Summary }},
	{FieldYear, func(m *ComicMetadata) *string { return &m.Year }},
	{FieldMonth, func(m *ComicMetadata) *string { return &m.Month }},
	{FieldDay, func(m *ComicMetadata) *string { return &m.Day }},
	{FieldWriter, func(m *ComicMetadata) *string { return &m.Writer }},
	{FieldPenciller, func(m *ComicMetadata) *string { return &m.Penciller }},
	{FieldInker, func(m *ComicMetadata) *string { return &m.Inker }},
	{FieldColorist, func(m *ComicMetadata) *string { return &m.Colorist }},
	{FieldLetterer, func(m *ComicMetadata) *string { return &m.Letterer }},
	{FieldCoverArtist, func(m *ComicMetadata) *string { return &m.CoverArtist }},
	{FieldEditor, func(m *ComicMetadata) *string { return &m.Editor }},
	{FieldPublisher, func(m *ComicMetadata) *string { return &m.Publisher }},
	{FieldImprint, func(m *ComicMetadata) *string { return &m.Imprint }},
	{FieldGenre, func(m *ComicMetadata) *string { return &m.Genre }},
	{FieldWeb, func(m *ComicMetadata) *string { return &m.Web }},
	{FieldLanguageISO, func(m *ComicMetadata) *string { return &m.LanguageISO }},
	{FieldManga, func(m *ComicMetadata) *string { return &m.Manga }},
	{FieldStoryArc, func(m *ComicMetadata) *string { return &m.StoryArc }},
	{FieldCharacters, func(m *ComicMetadata) *string { return &m.Characters }},
	{FieldAgeRating, func(m *ComicMetadata) *string { return &m.AgeRating }},
}

// MetadataFieldNames lists the editable field names in review order.
func MetadataFieldNames() []string {
	names := make([]string, len(metadataFields))
	for i, f := range metadataFields {
		names[i] = f.name
	}
	return names
}

func lookupField(name string) (metadataField, bool) {
	for _, f := range metadataFields {
		if f.name == name {
			return f, true
		}
	}
	return metadataField{}, false
}

// Get returns the value of a named field, or "" for unknown names.
func (m *ComicMetadata) Get(name string) string {
	f, ok := lookupField(name)
	if !ok {
		return ""
	}
	return *f.ptr(m)
}

// Set assigns a named field. It reports false for unknown names.
func (m *ComicMetadata) Set(name, value string) bool {
	f, ok := lookupField(name)
	if !ok {
		return false
	}
	*f.ptr(m) = value
	return true
}

// Values returns the non-empty fields keyed by name.
func (m *ComicMetadata) Values() map[string]string {
	out := make(map[string]string)
	for _, f := range metadataFields {
		if v := *f.ptr(m); v != "" {
			out[f.name] = v
		}
	}
	return out
}

// Merge overlays every non-empty value from partial onto m.
func (m *ComicMetadata) Merge(partial map[string]string) {
	for name, value := range partial {
		if value == "" {
			continue
		}
		m.Set(name, value)
	}
}

// IsMetadataField reports whether name is a ComicInfo field (rename is not).
func IsMetadataField(name string) bool {
	_, ok := lookupField(name)
	return ok
}
