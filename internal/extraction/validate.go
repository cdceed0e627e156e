package extraction

// Coercion rules: the model's payload is trusted for shape only. Quantities
// default to 1, confidence is clamped or bucketed, and absent prices stay
// absent.

func coerceItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ProductName == "" {
			continue
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
		if item.Price != nil && *item.Price < 0 {
			item.Price = nil
		}
		out = append(out, item)
	}
	return out
}

func coerceChat(result *ChatResult) {
	result.Items = coerceItems(result.Items)
	switch result.Confidence {
	case "high", "medium", "low":
	default:
		result.Confidence = "medium"
	}
}

func coerceSingle(result *SingleResult) {
	result.Items = coerceItems(result.Items)
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}
}
