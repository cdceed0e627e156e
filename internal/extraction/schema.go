package extraction

const (
	chatToolName   = "record_chat_order"
	singleToolName = "record_order"
)

const chatSystemPrompt = `You extract structured order data from small-business chat conversations. Messages are informal and code-mixed across languages (Hindi, Hinglish, English, and others). Identify the products, quantities, units, any stated prices, the customer's name, and delivery details. Never invent a price that was not stated. Report your confidence as high, medium or low. Always respond by calling the provided tool exactly once.`

const singleSystemPrompt = `You extract a structured order from a single free-text message. Messages are informal and may mix languages. Identify products, quantities, units, stated prices and delivery details. Never invent prices. Report confidence as a number between 0 and 1. Always respond by calling the provided tool exactly once.`

var itemSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_name": map[string]any{"type": "string"},
			"quantity":     map[string]any{"type": "number"},
			"unit":         map[string]any{"type": "string"},
			"price":        map[string]any{"type": []string{"number", "null"}},
		},
		"required": []string{"product_name"},
	},
}

var chatToolProperties = map[string]any{
	"items":            itemSchema,
	"customer_name":    map[string]any{"type": "string"},
	"delivery_address": map[string]any{"type": "string"},
	"delivery_date":    map[string]any{"type": "string"},
	"total_amount":     map[string]any{"type": "number"},
	"confidence": map[string]any{
		"type": "string",
		"enum": []string{"high", "medium", "low"},
	},
	"notes": map[string]any{"type": "string"},
}

var singleToolProperties = map[string]any{
	"items":            itemSchema,
	"customer_name":    map[string]any{"type": "string"},
	"delivery_address": map[string]any{"type": "string"},
	"delivery_date":    map[string]any{"type": "string"},
	"total_amount":     map[string]any{"type": "number"},
	"confidence": map[string]any{
		"type":    "number",
		"minimum": 0,
		"maximum": 1,
	},
}
