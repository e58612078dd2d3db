package pipeline

import (
	"fmt"
	"strings"

	"food-search-be/pkg/i18n"
	"food-search-be/pkg/llm"
	"food-search-be/pkg/places"
)

const jsonOnly = "Respond with a single JSON object and nothing else."

func gatePrompt(query string) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("You are a classifier for a restaurant and food search assistant.\n")
	sb.WriteString("Decide whether the user's message is a request to find food, a dish, a cuisine, a restaurant, a cafe or a bar.\n")
	sb.WriteString("verdict: YES if it clearly is, NO if it clearly is not, UNCERTAIN if you cannot tell.\n")
	sb.WriteString("language: the ISO 639-1 code of the language the message is written in.\n")
	sb.WriteString(`Schema: {"verdict":"YES|NO|UNCERTAIN","language":"en","reason":"short"}` + "\n")
	sb.WriteString(jsonOnly)
	return llm.Prompt{System: sb.String(), User: query}
}

func intentPrompt(query string, hasLocation bool) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("You choose the search strategy for a food search.\n")
	sb.WriteString("route: TEXTSEARCH when the user names a city, neighborhood or area, or gives no place at all.\n")
	sb.WriteString("route: NEARBY when the user means around their current position (\"near me\", \"around here\", \"close by\").\n")
	sb.WriteString("route: LANDMARK when the search is anchored on a named landmark, venue, street address or station.\n")
	sb.WriteString("foodQuery: the dish, cuisine or venue type only. landmark: the landmark name for LANDMARK. area: the area for TEXTSEARCH.\n")
	if hasLocation {
		sb.WriteString("The user shared their current location.\n")
	} else {
		sb.WriteString("The user did not share a location.\n")
	}
	sb.WriteString(`Schema: {"route":"TEXTSEARCH|NEARBY|LANDMARK","foodQuery":"","landmark":"","area":""}` + "\n")
	sb.WriteString(jsonOnly)
	return llm.Prompt{System: sb.String(), User: query}
}

func baseFiltersPrompt(query string) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("You extract filters from a food search request. Only set a filter the user explicitly asked for.\n")
	sb.WriteString("language: ISO 639-1 code of the user's language.\n")
	sb.WriteString("openNow: true only if the user wants places open right now.\n")
	sb.WriteString("price: CHEAP, MID or EXPENSIVE, omit if not mentioned.\n")
	sb.WriteString("minReviews: C25, C100 or C500 when the user wants popular or well-reviewed places (C500 for very popular), omit otherwise.\n")
	sb.WriteString(`Schema: {"language":"en","openNow":false,"price":"CHEAP","minReviews":"C100"}` + "\n")
	sb.WriteString(jsonOnly)
	return llm.Prompt{System: sb.String(), User: query}
}

func routeMapperPrompt(query string, intent IntentResult, lang i18n.Language) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("You write the query string sent to a places search engine.\n")
	sb.WriteString(fmt.Sprintf("Strategy: %s.\n", intent.Route))
	switch intent.Route {
	case places.RouteTextSearch:
		sb.WriteString("textQuery: the food plus the area, e.g. \"ramen in Shibuya\".\n")
	default:
		sb.WriteString("textQuery: the food only, e.g. \"ramen\". The search is already centered on a coordinate.\n")
		sb.WriteString("radiusMeters: how far to look, 500 to 5000, larger for vague requests.\n")
	}
	sb.WriteString(fmt.Sprintf("Write textQuery in language %q.\n", lang))
	if intent.FoodQuery != "" {
		sb.WriteString(fmt.Sprintf("Food: %s\n", intent.FoodQuery))
	}
	if intent.Area != "" {
		sb.WriteString(fmt.Sprintf("Area: %s\n", intent.Area))
	}
	sb.WriteString(`Schema: {"textQuery":"","radiusMeters":1500}` + "\n")
	sb.WriteString(jsonOnly)
	return llm.Prompt{System: sb.String(), User: query}
}

func narrationPrompt(query string, lang i18n.Language, candidates []places.Candidate, relaxed string) llm.Prompt {
	var sb strings.Builder
	sb.WriteString("You are a friendly food search assistant. Summarize the results in two sentences at most.\n")
	sb.WriteString(fmt.Sprintf("Write in language %q.\n", lang))
	if relaxed != "" {
		sb.WriteString(fmt.Sprintf("The %s filter matched nothing and was relaxed; mention it briefly.\n", relaxed))
	}
	if len(candidates) == 0 {
		sb.WriteString("Nothing was found. Suggest how to rephrase.\n")
	} else {
		sb.WriteString(fmt.Sprintf("%d places were found. Top picks:\n", len(candidates)))
		for i, c := range candidates {
			if i == 5 {
				break
			}
			sb.WriteString(fmt.Sprintf("- %s", c.Name))
			if c.Rating != nil {
				sb.WriteString(fmt.Sprintf(" (rating %.1f)", *c.Rating))
			}
			sb.WriteString("\n")
		}
	}
	sb.WriteString("suggestedAction: optional short follow-up the user could ask for.\n")
	sb.WriteString(`Schema: {"message":"","suggestedAction":""}` + "\n")
	sb.WriteString(jsonOnly)
	return llm.Prompt{System: sb.String(), User: query}
}
