package service

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/talecraft/api/internal/model"
)

const fallbackStorySource = `Dawno, dawno temu, w niezwykłej krainie żył sobie {{.Characters}}.
Wszyscy w okolicy wiedzieli, że jest to postać wyjątkowa, ponieważ cechowała ją niezwykła {{.Theme}}.

Każdego dnia {{.Characters}} wyruszał na nowe przygody, poznając mieszkańców zaczarowanego lasu.
Zwierzęta bardzo lubiły {{.Characters}}, ponieważ zawsze im pomagał i traktował z życzliwością.

Pewnego ranka {{.Characters}} obudził się i zobaczył, że niebo zasnuły ciemne chmury.
"Coś dziwnego dzieje się w naszym lesie" - pomyślał, wyglądając przez okno swojego domku.

Założył swój ulubiony płaszcz i wyruszył sprawdzić, co się stało. Po drodze spotkał małego zajączka, który drżał ze strachu.

"Co się stało, mały przyjacielu?" - zapytał {{.Characters}}.

"W lesie pojawił się smok, który zabrał całą naszą magiczną rosę! Bez niej wszystkie rośliny zwiędną, a my nie będziemy mieli co jeść" - odpowiedział zajączek.

{{.Characters}} bez wahania postanowił pomóc mieszkańcom lasu. Odważnie wyruszył w stronę najwyższej góry, gdzie podobno zamieszkał smok.

Droga była długa i trudna, ale {{.Characters}} nie poddawał się. Po wielu godzinach wspinaczki dotarł do jaskini smoka.

Ku jego zdziwieniu, smok wcale nie był groźny. Okazało się, że był bardzo samotny i zabrał magiczną rosę, bo myślał, że dzięki niej znajdzie przyjaciół.

{{.Characters}} opowiedział smokowi o zmartwieniach mieszkańców lasu. Smok zrozumiał, że postąpił niewłaściwie i zgodził się zwrócić magiczną rosę.

W zamian {{.Characters}} obiecał często odwiedzać smoka i zostać jego przyjacielem.

Gdy wrócili do lasu, wszyscy mieszkańcy świętowali. Magiczna rosa znów pokryła wszystkie rośliny, a las odzyskał swój blask.

Od tej pory {{.Characters}} i smok spędzali razem wiele czasu, a mieszkańcy lasu żyli szczęśliwie.

Ta historia nauczyła wszystkich, że {{.Theme}} i przyjaźń potrafią pokonać każde przeciwności.`

var fallbackStoryTemplate = template.Must(template.New("fallback_story").Parse(fallbackStorySource))

type fallbackStoryData struct {
	Characters string
	Theme      string
}

// ShortTheme lowercases the theme and strips a leading "bajka o " / "bajka "
func ShortTheme(theme string) string {
	short := strings.ToLower(strings.TrimSpace(theme))
	short = strings.TrimPrefix(short, "bajka o ")
	short = strings.TrimPrefix(short, "bajka ")
	return short
}

// RenderFallbackStory fills the built-in story skeleton with the brief
func RenderFallbackStory(brief model.Brief) (string, error) {
	var b strings.Builder
	err := fallbackStoryTemplate.Execute(&b, fallbackStoryData{
		Characters: strings.TrimSpace(brief.Characters),
		Theme:      ShortTheme(brief.Theme),
	})
	if err != nil {
		return "", fmt.Errorf("%w: fallback story: %v", ErrTextGeneration, err)
	}
	return FormatStoryText(b.String()), nil
}
