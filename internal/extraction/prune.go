package extraction

// PruneMessages applies the sliding-window context policy: walk newest to
// oldest accumulating character counts, keep messages until the cap would
// be exceeded, and drop the rest. Dropped messages are not lost; callers
// persist the full transcript in rawMessages.
func PruneMessages(messages []ChatMessage, maxChars int) []ChatMessage {
	if maxChars <= 0 || len(messages) == 0 {
		return messages
	}

	total := 0
	cut := 0
	for i := len(messages) - 1; i >= 0; i-- {
		size := len(messages[i].Sender) + len(messages[i].Text)
		if total+size > maxChars {
			cut = i + 1
			break
		}
		total += size
	}

	if cut == 0 {
		return messages
	}
	return messages[cut:]
}
