package endpoint

import (
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"

	"nosh/nutrition"
)

// logFoodDeclaration builds the log_food tool declaration from the
// FoodEntry type, so the schema the model sees and the struct the
// endpoint unmarshals into cannot drift apart.
var logFoodDeclaration = sync.OnceValue(func() *genai.FunctionDeclaration {
	schema, err := jsonschema.For[nutrition.FoodEntry](nil)
	if err != nil {
		panic(fmt.Sprintf("endpoint: derive %s schema: %v", toolName, err))
	}
	params := convSchema(schema)
	params.Required = []string{
		"name", "quantity", "calories", "protein", "carbs", "fat", "fiber",
	}
	return &genai.FunctionDeclaration{
		Name: toolName,
		Description: "Log one food or drink the speaker mentioned, with its " +
			"quantity and estimated nutrients for that quantity.",
		Parameters: params,
	}
})

func convSchema(schema *jsonschema.Schema) *genai.Schema {
	if schema == nil {
		return nil
	}

	enums := make([]string, 0, len(schema.Enum))
	for _, v := range schema.Enum {
		enums = append(enums, fmt.Sprintf("%v", v))
	}

	gs := genai.Schema{
		Format:      schema.Format,
		Description: schema.Description,
		Enum:        enums,
		Items:       convSchema(schema.Items),
		Required:    schema.Required,
	}
	if n := len(schema.Properties); n > 0 {
		gs.Properties = make(map[string]*genai.Schema, n)
		for k, prop := range schema.Properties {
			gs.Properties[k] = convSchema(prop)
		}
	}
	switch schema.Type {
	case "object":
		gs.Type = genai.TypeObject
	case "array":
		gs.Type = genai.TypeArray
	case "string":
		gs.Type = genai.TypeString
	case "number":
		gs.Type = genai.TypeNumber
	case "integer":
		gs.Type = genai.TypeInteger
	case "boolean":
		gs.Type = genai.TypeBoolean
	}
	return &gs
}
