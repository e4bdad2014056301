package openai

import (
	"fmt"
	"strings"
)

const extractionSystemPrompt = `You are an expert at extracting structured information from insurance documents.
Extract entities and relationships from the provided text according to the specified entity types.

Output ONLY valid JSON. Do not include any preamble or explanation. Your output must follow this structure:
{
  "entities": [
    {"id": "unique_id", "label": "entity_label", "type": "entity_type", "properties": {}}
  ],
  "relationships": [
    {"source": "source_entity_id", "target": "target_entity_id", "type": "relationship_type", "properties": {}}
  ]
}

Rules:
- Type must be exactly one of the requested entity types.
- Relationship source and target must be ids of entities in the same response.
- Include only entities explicitly mentioned in the text. Do not hallucinate.
- If nothing can be identified, return {"entities": [], "relationships": []}.`

const extractionUserTemplate = `Entity types to extract: %s

Text to analyze:
%s

Extract all relevant entities and their relationships.`

func buildExtractionPrompt(text string, types []string) string {
	return fmt.Sprintf(extractionUserTemplate, strings.Join(types, ", "), text)
}
