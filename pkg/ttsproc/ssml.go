package ttsproc

import (
	"fmt"
	"html"

	"github.com/callcore-ai/callcore/pkg/agentconfig"
)

// buildSSML wraps text per spec.md §4.9: prosody from VoiceConfig, with
// an optional mstts:express-as style wrapper when the voice declares a
// style.
func buildSSML(text string, v agentconfig.VoiceConfig, lang string) string {
	escaped := html.EscapeString(text)

	rate := fmt.Sprintf("%.0f%%", (v.Rate-1.0)*100)
	pitch := fmt.Sprintf("%+.0fHz", v.PitchHz)
	volume := fmt.Sprintf("%d", v.Volume)

	body := fmt.Sprintf(
		`<prosody rate="%s" pitch="%s" volume="%s">%s</prosody>`,
		rate, pitch, volume, escaped,
	)

	if v.Style != "" {
		body = fmt.Sprintf(
			`<mstts:express-as style="%s" styledegree="%.2f">%s</mstts:express-as>`,
			v.Style, v.StyleDegree, body,
		)
	}

	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xmlns:mstts="https://www.w3.org/2001/mstts" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang, v.Name, body,
	)
}
