package i18n

import "fmt"

// Key identifies a localized string.
type Key string

const (
	KeyGreeting         Key = "greeting"
	KeyWorking          Key = "working"
	KeySearching        Key = "searching"
	KeyClarifyLocation  Key = "clarify_location"
	KeyClarifyLandmark  Key = "clarify_landmark"
	KeyClarifyUncertain Key = "clarify_uncertain"
	KeyGateFail         Key = "gate_fail"
	KeySummaryFound     Key = "summary_found"
	KeySummaryEmpty     Key = "summary_empty"
	KeySearchFailed     Key = "search_failed"
	KeyRelaxedFilter    Key = "relaxed_filter"
	KeyRefineHint       Key = "refine_hint"
)

// catalog is keyed by language; a missing entry falls back to English.
// Adding a language only means adding a row here and to supported.
var catalog = map[Language]map[Key]string{
	English: {
		KeyGreeting:         "Hi! Tell me what you feel like eating and where, and I'll find places for you.",
		KeyWorking:          "Working on it…",
		KeySearching:        "Looking for places…",
		KeyClarifyLocation:  "Where should I search? Share your location or name a neighborhood or city.",
		KeyClarifyLandmark:  "I couldn't find that place. Which landmark or address did you mean?",
		KeyClarifyUncertain: "Are you looking for food or a place to eat? Tell me a bit more.",
		KeyGateFail:         "I can only help with finding food and places to eat.",
		KeySummaryFound:     "I found %d places for \"%s\".",
		KeySummaryEmpty:     "I couldn't find any places for \"%s\".",
		KeySearchFailed:     "Something went wrong while searching. Please try again.",
		KeyRelaxedFilter:    "No results matched the %s filter, so I relaxed it.",
		KeyRefineHint:       "Try a different dish, area, or fewer filters.",
	},
	Spanish: {
		KeyGreeting:        "¡Hola! Dime qué te apetece comer y dónde, y te buscaré lugares.",
		KeyWorking:         "Trabajando en ello…",
		KeySearching:       "Buscando lugares…",
		KeyClarifyLocation: "¿Dónde busco? Comparte tu ubicación o indica un barrio o ciudad.",
		KeyGateFail:        "Solo puedo ayudarte a encontrar comida y lugares para comer.",
		KeySummaryFound:    "Encontré %d lugares para \"%s\".",
		KeySummaryEmpty:    "No encontré lugares para \"%s\".",
		KeySearchFailed:    "Algo salió mal durante la búsqueda. Inténtalo de nuevo.",
	},
	French: {
		KeyGreeting:        "Bonjour ! Dites-moi ce que vous voulez manger et où, et je vous trouverai des adresses.",
		KeyWorking:         "Je m'en occupe…",
		KeySearching:       "Recherche de restaurants…",
		KeyClarifyLocation: "Où dois-je chercher ? Partagez votre position ou indiquez un quartier ou une ville.",
		KeyGateFail:        "Je peux seulement vous aider à trouver à manger et des restaurants.",
		KeySummaryFound:    "J'ai trouvé %d adresses pour « %s ».",
		KeySummaryEmpty:    "Je n'ai trouvé aucune adresse pour « %s ».",
		KeySearchFailed:    "Un problème est survenu pendant la recherche. Veuillez réessayer.",
	},
	Hebrew: {
		KeyGreeting:        "היי! ספרו לי מה בא לכם לאכול ואיפה, ואמצא לכם מקומות.",
		KeySearching:       "מחפש מקומות…",
		KeyClarifyLocation: "איפה לחפש? שתפו מיקום או ציינו שכונה או עיר.",
		KeyGateFail:        "אני יכול לעזור רק במציאת אוכל ומקומות לאכול.",
		KeySummaryFound:    "מצאתי %d מקומות עבור \"%s\".",
		KeySummaryEmpty:    "לא מצאתי מקומות עבור \"%s\".",
		KeySearchFailed:    "משהו השתבש בחיפוש. נסו שוב.",
	},
	Russian: {
		KeyGreeting:        "Привет! Напишите, что хотите поесть и где, и я найду места.",
		KeySearching:       "Ищу места…",
		KeyClarifyLocation: "Где искать? Поделитесь местоположением или назовите район или город.",
		KeyGateFail:        "Я могу помочь только с поиском еды и мест, где поесть.",
		KeySearchFailed:    "Во время поиска что-то пошло не так. Попробуйте ещё раз.",
	},
}

// Text returns the string for key in lang, falling back to English, formatted with args.
func Text(lang Language, key Key, args ...any) string {
	s, ok := catalog[lang][key]
	if !ok {
		s = catalog[Fallback][key]
	}
	if len(args) == 0 {
		return s
	}
	return fmt.Sprintf(s, args...)
}

// Has reports whether lang has its own translation for key.
func Has(lang Language, key Key) bool {
	_, ok := catalog[lang][key]
	return ok
}
