package importer

import (
	"fmt"
	"html"
	"strings"

	"discosync/internal/discogs"
)

// DisplayTitle derives the catalog display title from a release:
// "primary contributor - title", with placeholders when either side is
// missing from the upstream payload.
func DisplayTitle(r *discogs.Release) string {
	artist := strings.TrimSpace(r.ArtistsSort)
	if artist == "" {
		for _, a := range r.Artists {
			if name := strings.TrimSpace(a.Name); name != "" {
				artist = name
				break
			}
		}
	}
	if artist == "" {
		artist = "Unknown Artist"
	}
	title := strings.TrimSpace(r.Title)
	if title == "" {
		title = "Untitled"
	}
	return artist + " - " + title
}

// TracklistHTML flattens the release tracklist into nested ordered lists.
// Sub-tracks render depth-first inside their parent entry, preserving the
// upstream order at every level.
func TracklistHTML(tracks []discogs.Track) string {
	if len(tracks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(`<ol class="tracklist">`)
	writeTracks(&b, tracks)
	b.WriteString("</ol>")
	return b.String()
}

func writeTracks(b *strings.Builder, tracks []discogs.Track) {
	for _, t := range tracks {
		b.WriteString("<li>")
		if pos := strings.TrimSpace(t.Position); pos != "" {
			fmt.Fprintf(b, `<span class="position">%s</span> `, html.EscapeString(pos))
		}
		b.WriteString(html.EscapeString(t.Title))
		if dur := strings.TrimSpace(t.Duration); dur != "" {
			fmt.Fprintf(b, ` <span class="duration">(%s)</span>`, html.EscapeString(dur))
		}
		if len(t.SubTracks) > 0 {
			b.WriteString("<ol>")
			writeTracks(b, t.SubTracks)
			b.WriteString("</ol>")
		}
		b.WriteString("</li>")
	}
}

// CreditsHTML groups release credits by role in first-seen order. Names
// within a role are deduplicated, also in first-seen order. Credits without
// a role land in a generic "Credits" bucket.
func CreditsHTML(credits []discogs.Credit) string {
	if len(credits) == 0 {
		return ""
	}

	var roles []string
	names := make(map[string][]string)
	seen := make(map[string]map[string]bool)

	for _, c := range credits {
		role := strings.TrimSpace(c.Role)
		if role == "" {
			role = "Credits"
		}
		name := strings.TrimSpace(c.Name)
		if name == "" {
			continue
		}
		if seen[role] == nil {
			roles = append(roles, role)
			seen[role] = make(map[string]bool)
		}
		if seen[role][name] {
			continue
		}
		seen[role][name] = true
		names[role] = append(names[role], name)
	}

	if len(roles) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<div class="credits">`)
	for _, role := range roles {
		escaped := make([]string, len(names[role]))
		for i, n := range names[role] {
			escaped[i] = html.EscapeString(n)
		}
		fmt.Fprintf(&b, "<h4>%s</h4><p>%s</p>",
			html.EscapeString(role), strings.Join(escaped, ", "))
	}
	b.WriteString("</div>")
	return b.String()
}

// Description builds the long product description from the release notes,
// one paragraph per blank-line-separated block.
func Description(r *discogs.Release) string {
	notes := strings.TrimSpace(r.Notes)
	if notes == "" {
		return ""
	}
	var b strings.Builder
	for _, block := range strings.Split(notes, "\n\n") {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(block), "\n", "<br>"))
		b.WriteString("</p>")
	}
	return b.String()
}

// ShortDescription summarizes the release in one line: format, label,
// year and country, skipping whatever the payload lacks.
func ShortDescription(r *discogs.Release) string {
	var parts []string
	if summary := FormatSummary(r.Formats); summary != "" {
		parts = append(parts, summary)
	}
	if len(r.Labels) > 0 {
		label := strings.TrimSpace(r.Labels[0].Name)
		if label != "" {
			if catno := strings.TrimSpace(r.Labels[0].CatalogNumber); catno != "" {
				label += " (" + catno + ")"
			}
			parts = append(parts, "on "+label)
		}
	}
	if r.Year > 0 {
		parts = append(parts, fmt.Sprintf("%d", r.Year))
	}
	if country := strings.TrimSpace(r.Country); country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}

// FormatSummary renders the physical format line, e.g. "2×LP, Album".
func FormatSummary(formats []discogs.Format) string {
	var parts []string
	for _, f := range formats {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			continue
		}
		if f.Quantity != "" && f.Quantity != "1" {
			name = f.Quantity + "×" + name
		}
		if len(f.Descriptions) > 0 {
			name += ", " + strings.Join(f.Descriptions, ", ")
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "; ")
}

// Attributes extracts the displayable release attributes carried onto the
// product (year, country, catalog number).
func Attributes(r *discogs.Release) map[string]string {
	attrs := make(map[string]string)
	if r.Year > 0 {
		attrs["year"] = fmt.Sprintf("%d", r.Year)
	}
	if country := strings.TrimSpace(r.Country); country != "" {
		attrs["country"] = country
	}
	if len(r.Labels) > 0 {
		if catno := strings.TrimSpace(r.Labels[0].CatalogNumber); catno != "" {
			attrs["catalog_number"] = catno
		}
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}
